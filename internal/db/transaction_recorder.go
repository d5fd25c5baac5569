// Package db persists a record of every submission attempt the driver
// makes: what it tried to submit, what it cost, and whether it mined.
// cmd/status reads this history back out. GORM + MySQL is the stack
// carried over from this repo's original asset-snapshot recorder, and
// it's the right fit here too: a queryable, growing row store is
// exactly what a relational mapper earns its keep on.
package db

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/submitter"
)

// Outcome classifies how a submission attempt for a batch ended.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSkipped   Outcome = "skipped"
)

// SubmittedSolutionRecord is the database model for one submission
// attempt: the solution the driver claimed as its objective, the gas
// price it settled at, and whether it actually mined.
type SubmittedSolutionRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	BatchID   uint64    `gorm:"index;not null"`
	Objective string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	GasPrice  string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	TxHash    string    `gorm:"type:varchar(66);comment:empty when no tx was ever sent"`
	Mined     bool      `gorm:"not null"`
	Outcome   string    `gorm:"type:varchar(16);not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (SubmittedSolutionRecord) TableName() string {
	return "submitted_solutions"
}

// MySQLRecorder records and queries submission history using GORM and MySQL.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder creates a new MySQLRecorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(&SubmittedSolutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &MySQLRecorder{db: db}, nil
}

// NewMySQLRecorderWithDB creates a new MySQLRecorder with an existing GORM DB instance.
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(&SubmittedSolutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &MySQLRecorder{db: db}, nil
}

// RecordSubmission stores one submission attempt's outcome.
func (r *MySQLRecorder) RecordSubmission(batch dextypes.BatchId, claimed dextypes.Objective, outcome submitter.Outcome, classified Outcome) error {
	txHash := ""
	if outcome.Result.TxHash != (common.Hash{}) {
		txHash = outcome.Result.TxHash.Hex()
	}
	record := SubmittedSolutionRecord{
		Timestamp: time.Now(),
		BatchID:   uint64(batch),
		Objective: bigIntToString(claimed),
		GasPrice:  bigIntToString(outcome.Result.GasPrice),
		TxHash:    txHash,
		Mined:     outcome.WasMined,
		Outcome:   string(classified),
	}

	result := r.db.Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to record submission: %w", result.Error)
	}

	return nil
}

// GetDB exposes the underlying GORM handle for the status CLI's ad-hoc
// queries that don't warrant their own method here.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close releases the pooled connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// GetLatestSolution is the "what did the driver last do" query behind
// cmd/status's default output.
func (r *MySQLRecorder) GetLatestSolution() (*SubmittedSolutionRecord, error) {
	var record SubmittedSolutionRecord
	if err := r.db.Order("timestamp DESC").First(&record).Error; err != nil {
		return nil, fmt.Errorf("latest submission: %w", err)
	}
	return &record, nil
}

// GetSolutionsByTimeRange answers cmd/status's -since/-until window query.
func (r *MySQLRecorder) GetSolutionsByTimeRange(start, end time.Time) ([]SubmittedSolutionRecord, error) {
	var records []SubmittedSolutionRecord
	err := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("submissions in [%s, %s]: %w", start, end, err)
	}
	return records, nil
}

// GetSolutionsByOutcome answers cmd/status's -outcome filter, e.g.
// listing every batch the scheduler had to skip.
func (r *MySQLRecorder) GetSolutionsByOutcome(outcome Outcome) ([]SubmittedSolutionRecord, error) {
	var records []SubmittedSolutionRecord
	err := r.db.Where("outcome = ?", string(outcome)).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("submissions with outcome %s: %w", outcome, err)
	}
	return records, nil
}

// CountSolutions backs cmd/status's summary line.
func (r *MySQLRecorder) CountSolutions() (int64, error) {
	var count int64
	if err := r.db.Model(&SubmittedSolutionRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}
