package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadCredentialsFile reads broker credentials from a KEY=VALUE file and
// fills Username/Password on the RabbitMQ config. Inline values win over the
// file so a config file can override selectively.
func (c *RabbitMQConfig) LoadCredentialsFile() error {
	if c.CredentialsFile == "" {
		return nil
	}

	envMap, err := parseEnvFile(c.CredentialsFile)
	if err != nil {
		return err
	}

	if c.Username == "" {
		c.Username = envMap["RABBITMQ_USERNAME"]
	}
	if c.Password == "" {
		c.Password = envMap["RABBITMQ_PASSWORD"]
	}

	return nil
}

func parseEnvFile(path string) (map[string]string, error) {
	envMap := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening credentials file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		envMap[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading credentials file: %v", err)
	}

	return envMap, nil
}
