// Package history keeps an optional append-only log of check runs in a local
// SQLite database, for inspection from the dashboard.
package history

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/queuewatch/queuewatch/models"
)

// Run is one recorded check run.
type Run struct {
	ID       uint      `gorm:"primarykey" json:"-"`
	RunID    int64     `gorm:"index" json:"run_id"`
	At       time.Time `json:"at"`
	Severity int       `json:"severity"`
	Message  string    `json:"message"`

	Observations []Observation `gorm:"foreignKey:RunRowID" json:"observations,omitempty"`
}

// Observation is one queue's depth within a recorded run.
type Observation struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	RunRowID uint   `gorm:"index" json:"-"`
	Queue    string `json:"queue"`
	Messages int64  `json:"messages"`
	Alerted  string `json:"alerted,omitempty"`
}

type Recorder struct {
	db   *gorm.DB
	keep int
}

// New opens (and migrates) the history database. keep bounds how many runs
// are retained; 0 keeps everything.
func New(path string, keep int) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Run{}, &Observation{}); err != nil {
		return nil, err
	}

	return &Recorder{db: db, keep: keep}, nil
}

func (r *Recorder) RecordRun(result models.CheckResult, snapshot []models.QueueObservation) error {
	run := Run{
		RunID:    result.RunID,
		At:       result.At,
		Severity: int(result.Severity),
		Message:  result.Message,
	}

	for _, obs := range snapshot {
		alerted := ""
		if _, ok := result.Critical[obs.Name]; ok {
			alerted = models.SeverityCritical.String()
		} else if _, ok := result.Warning[obs.Name]; ok {
			alerted = models.SeverityWarning.String()
		}
		run.Observations = append(run.Observations, Observation{
			Queue:    obs.Name,
			Messages: obs.Messages,
			Alerted:  alerted,
		})
	}

	if err := r.db.Create(&run).Error; err != nil {
		return err
	}

	r.prune()
	return nil
}

// RecentRuns returns the newest runs, observations included.
func (r *Recorder) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := r.db.Preload("Observations").Order("at desc").Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *Recorder) prune() {
	if r.keep <= 0 {
		return
	}

	var stale []Run
	err := r.db.Order("at desc").Offset(r.keep).Find(&stale).Error
	if err != nil || len(stale) == 0 {
		return
	}

	ids := make([]uint, len(stale))
	for i, run := range stale {
		ids[i] = run.ID
	}

	if err := r.db.Where("run_row_id IN ?", ids).Delete(&Observation{}).Error; err != nil {
		log.Error().Err(err).Msg("Unable to prune history observations")
		return
	}
	if err := r.db.Delete(&Run{}, ids).Error; err != nil {
		log.Error().Err(err).Msg("Unable to prune history runs")
	}
}
