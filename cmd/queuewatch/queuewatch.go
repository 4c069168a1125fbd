package queuewatch

import (
	"context"
	"fmt"
	"time"

	"github.com/queuewatch/queuewatch/check"
	"github.com/queuewatch/queuewatch/models"
)

// RunCheck performs one check and returns the monitoring framework's exit
// code. The result message goes to stdout for the invoking scheduler.
func RunCheck(checker *check.Checker) int {
	result, err := checker.Run(context.Background(), time.Now().UTC())

	fmt.Println(result.Message)

	if err != nil {
		return models.SeverityUnknown.ExitCode()
	}
	return result.Severity.ExitCode()
}
