package db

import (
	"fmt"
	"os"

	"lab_lending_tool/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DSN 从 DB_* 环境变量拼出连接串
func DSN() string {
	sslmode := os.Getenv("DB_SSLMODE")
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		sslmode,
	)
}

func ConnectDB() (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	zap.L().Info("database connected", zap.String("host", os.Getenv("DB_HOST")), zap.String("db", os.Getenv("DB_NAME")))
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{}, &models.Credential{},
		&models.Product{},
		&models.Request{}, &models.RequestedProduct{}, &models.Issuance{}, &models.ReturnEvent{}, &models.ReIssue{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	stmts := []string{
		// 每个申请最多一条待审的延期
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_pending_per_request
		  ON %s (request_id) WHERE status = 'pending'`, models.ReIssueTable, models.ReIssueTable),
		// 库存计数不能互相矛盾
		fmt.Sprintf(`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s_counts_consistent') THEN
		    ALTER TABLE %s ADD CONSTRAINT %s_counts_consistent
		      CHECK (in_stock >= 0 AND damaged_quantity >= 0 AND quantity >= damaged_quantity + in_stock);
		  END IF;
		END $$`, models.ProductTable, models.ProductTable, models.ProductTable),
		// 超时扫描只看已批准未领取
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_awaiting_collection
		  ON %s (collection_date) WHERE status = 'approved' AND collected_date IS NULL`, models.RequestTable, models.RequestTable),
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
