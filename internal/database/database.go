package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"studysync-backend/internal/config"
	"studysync-backend/internal/model"
)

// DB 전역 데이터베이스 인스턴스
var DB *gorm.DB

// ConnectDB 데이터베이스 연결 수립
func ConnectDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	// GORM 로거 설정
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	// GORM 연결
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 커넥션 풀 설정
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	// 전역 변수에 저장
	DB = db

	// AutoMigrate - 테이블 스키마 자동 업데이트
	if err := db.AutoMigrate(
		&model.User{},
		&model.Room{},
		&model.RoomMember{},
		&model.BoardAction{},
		&model.RoomNote{},
		&model.SharedFile{},
	); err != nil {
		log.Printf("⚠️ AutoMigrate warning: %v", err)
	}

	// Replay order depends on this index; make sure it exists even when
	// AutoMigrate was skipped against a pre-provisioned schema.
	sql := `CREATE INDEX IF NOT EXISTS idx_board_actions_room_seq ON board_actions (room_id, seq);`
	if err := db.Exec(sql).Error; err != nil {
		log.Printf("⚠️ Manual index creation warning: %v", err)
	}

	return db, nil
}

// Ping 데이터베이스 연결 테스트
func Ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close 데이터베이스 연결 종료
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
