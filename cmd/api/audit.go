package main

import (
	"database/sql"

	"taskplanner-admin/internal/audit"
	"taskplanner-admin/internal/config"
)

// buildAuditRepo always writes to postgres and mirrors to kafka when brokers are set.
func buildAuditRepo(db *sql.DB, cfg config.AuditConfig) (audit.Repository, func() error, error) {
	pg := audit.NewPostgresRepo(db)
	if len(cfg.KafkaBrokers) == 0 {
		return pg, func() error { return nil }, nil
	}
	k, err := audit.NewKafkaRepo(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return audit.Tee{pg, k}, k.Close, nil
}
