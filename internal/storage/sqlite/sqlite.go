package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fenggwsx/roomcast/internal/config"
	"github.com/fenggwsx/roomcast/internal/storage"
)

// Store is a GORM-backed SQLite implementation of the storage interfaces.
type Store struct {
	db *gorm.DB
}

var (
	_ storage.MessageStore  = (*Store)(nil)
	_ storage.RoomDirectory = (*Store)(nil)
	_ storage.UserStore     = (*Store)(nil)
)

type userModel struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex"`
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type roomModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RoomID    string `gorm:"uniqueIndex;size:16;not null"`
	Name      string `gorm:"not null"`
	OwnerID   string `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (roomModel) TableName() string { return "rooms" }

// messageModel keeps an autoincrement sequence so that messages sharing a
// timestamp are returned in insertion order.
type messageModel struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:26;not null"`
	RoomID    string    `gorm:"index:idx_messages_room_ts,priority:1;not null"`
	Sender    string    `gorm:"not null"`
	Text      string    `gorm:"not null"`
	Timestamp time.Time `gorm:"index:idx_messages_room_ts,priority:2;not null"`
}

func (messageModel) TableName() string { return "messages" }

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userModel{}, &roomModel{}, &messageModel{})
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateUser stores a new user record.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	model := userModel{
		ID:        user.ID,
		Username:  user.Username,
		Password:  user.Password,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return &storage.User{
		ID:        model.ID,
		Username:  model.Username,
		Password:  model.Password,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// Create registers a room under a freshly generated public identifier.
func (s *Store) Create(ctx context.Context, name, ownerID string) (storage.Room, error) {
	roomID, err := storage.NewRoomID()
	if err != nil {
		return storage.Room{}, fmt.Errorf("generate room id: %w", err)
	}
	now := time.Now().UTC()
	model := roomModel{
		RoomID:    roomID,
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return storage.Room{}, err
	}
	return toRoom(model), nil
}

// FindByRoomID looks a room up by its public identifier.
func (s *Store) FindByRoomID(ctx context.Context, roomID string) (storage.Room, error) {
	var model roomModel
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&model).Error; err != nil {
		return storage.Room{}, translate(err)
	}
	return toRoom(model), nil
}

// ListByOwner returns the rooms created by ownerID, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]storage.Room, error) {
	var models []roomModel
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	rooms := make([]storage.Room, 0, len(models))
	for _, m := range models {
		rooms = append(rooms, toRoom(m))
	}
	return rooms, nil
}

// Append persists a chat message with a server-assigned id and timestamp.
func (s *Store) Append(ctx context.Context, roomID, sender, text string) (storage.ChatMessage, error) {
	model := messageModel{
		ID:        storage.NewMessageID(),
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: storage.MessageTimestamp(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return storage.ChatMessage{}, err
	}
	return toChatMessage(model), nil
}

// ListByRoom returns the oldest limit messages of a room in ascending order.
func (s *Store) ListByRoom(ctx context.Context, roomID string, limit int) ([]storage.ChatMessage, error) {
	var models []messageModel
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp ASC").Order("seq ASC").
		Limit(storage.NormalizeLimit(limit)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]storage.ChatMessage, 0, len(models))
	for _, m := range models {
		messages = append(messages, toChatMessage(m))
	}
	return messages, nil
}

func toRoom(m roomModel) storage.Room {
	return storage.Room{
		RoomID:    m.RoomID,
		Name:      m.Name,
		OwnerID:   m.OwnerID,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func toChatMessage(m messageModel) storage.ChatMessage {
	return storage.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: m.Timestamp.UTC(),
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}
