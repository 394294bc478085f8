// persistence/archive.go
package persistence

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Archive stores finished games for later stats queries. It is optional;
// the live game never depends on it.
type Archive interface {
	SaveGameRecord(rec *GameRecord) error
	PlayerStats(name string) (*PlayerStats, error)
	Transaction(fn func(tx *gorm.DB) error) error
	Close() error
}

// GameRecord 一局已结束的游戏
type GameRecord struct {
	RoomCode string                 `json:"roomCode"`
	Winner   string                 `json:"winner"`
	Rounds   int                    `json:"rounds"`
	Players  map[string]interface{} `json:"players"` // name -> {points, outcome}
}

// PlayerStats 玩家统计
type PlayerStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
}

// GormArchive 使用GORM的PostgreSQL实现
type GormArchive struct {
	db *gorm.DB
}

// GameRecordModel 定义GORM模型
type GameRecordModel struct {
	ID        uint                   `gorm:"primaryKey"`
	RoomCode  string                 `gorm:"index;not null"`
	Winner    string                 `gorm:"index"`
	Rounds    int                    `gorm:"default:0"`
	Players   map[string]interface{} `gorm:"serializer:json;type:jsonb"`
	CreatedAt time.Time
}

// NewGormArchive 创建GORM PostgreSQL数据库连接
func NewGormArchive(host string, port int, user, password, dbname string) (*GormArchive, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	dbLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&GameRecordModel{}); err != nil {
		return nil, err
	}

	return &GormArchive{db: db}, nil
}

// SaveGameRecord 保存游戏记录
func (a *GormArchive) SaveGameRecord(rec *GameRecord) error {
	model := GameRecordModel{
		RoomCode: rec.RoomCode,
		Winner:   rec.Winner,
		Rounds:   rec.Rounds,
		Players:  rec.Players,
	}
	return a.db.Create(&model).Error
}

// PlayerStats 查询玩家胜负统计
func (a *GormArchive) PlayerStats(name string) (*PlayerStats, error) {
	var stats PlayerStats
	err := a.db.Raw(
		`
        SELECT
            COUNT(*) as total_games,
            SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END) as wins,
            SUM(CASE WHEN winner <> ? THEN 1 ELSE 0 END) as losses
        FROM game_record_models
        WHERE players @> ?`,
		name, name, fmt.Sprintf(`{"%s": {}}`, name),
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Transaction 事务支持
func (a *GormArchive) Transaction(fn func(tx *gorm.DB) error) error {
	return a.db.Transaction(fn)
}

// Close 关闭数据库连接
func (a *GormArchive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
