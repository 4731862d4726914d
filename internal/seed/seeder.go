package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db            *gorm.DB
	directory     repository.DirectoryRepository
	notifications repository.NotificationStore
	messages      repository.MessageStore
}

// NewSeeder creates a new seeder instance. Notifications and messages go to
// the given stores so a document-store deployment gets seeded too; nil stores
// fall back to the SQL tables.
func NewSeeder(db *gorm.DB, notifications repository.NotificationStore, messages repository.MessageStore) *Seeder {
	// Note: Seed returns an error only for invalid sources, time.Now().UnixNano() is always valid
	_ = gofakeit.Seed(time.Now().UnixNano())
	if notifications == nil {
		notifications = repository.NewNotificationRepository(db)
	}
	if messages == nil {
		messages = repository.NewMessageRepository(db)
	}
	return &Seeder{
		db:            db,
		directory:     repository.NewDirectoryRepository(db),
		notifications: notifications,
		messages:      messages,
	}
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev(ctx context.Context) error {
	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(ctx, 50)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	logger.Log.Info("Creating follows and blocks...")
	if err := s.seedFollows(ctx, users, 5); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}
	if err := s.seedBlocks(ctx, users, 5); err != nil {
		return fmt.Errorf("failed to seed blocks: %w", err)
	}

	logger.Log.Info("Creating communities...")
	communities, err := s.seedCommunities(ctx, users, 5)
	if err != nil {
		return fmt.Errorf("failed to seed communities: %w", err)
	}

	logger.Log.Info("Creating messages...")
	if err := s.seedMessages(ctx, users, communities, 200); err != nil {
		return fmt.Errorf("failed to seed messages: %w", err)
	}

	logger.Log.Info("Creating notifications...")
	if err := s.seedNotifications(ctx, users, 30); err != nil {
		return fmt.Errorf("failed to seed notifications: %w", err)
	}
	return nil
}

// SeedTest seeds the test database with a small fixed cast
func (s *Seeder) SeedTest(ctx context.Context) error {
	testUserSpecs := []struct {
		id       string
		username string
		name     string
	}{
		{"test-alice", "alice", "Alice Smith"},
		{"test-bob", "bob", "Bob Johnson"},
		{"test-charlie", "charlie", "Charlie Brown"},
		{"test-diana", "diana", "Diana Prince"},
		{"test-eve", "eve", "Eve Wilson"},
	}

	users := make([]*models.User, 0, len(testUserSpecs))
	for _, tu := range testUserSpecs {
		if existing, err := s.directory.GetUser(ctx, tu.id); err == nil {
			users = append(users, existing)
			continue
		}
		user := &models.User{
			ID:        tu.id,
			Email:     tu.username + "@example.com",
			Username:  tu.username,
			Name:      tu.name,
			AvatarURL: fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", tu.username),
		}
		if err := s.directory.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create test user %s: %w", tu.username, err)
		}
		users = append(users, user)
	}

	// everyone follows alice
	for _, u := range users[1:] {
		if err := s.directory.CreateFollow(ctx, u.ID, users[0].ID); err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}
	}
	// eve has blocked bob
	if err := s.directory.Block(ctx, users[4].ID, users[1].ID); err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	community := &models.Community{ID: "test-community", Name: "Test Community", Description: "Seeded test community"}
	if _, err := s.directory.GetCommunity(ctx, community.ID); err != nil {
		if err := s.directory.CreateCommunity(ctx, community); err != nil {
			return fmt.Errorf("failed to create test community: %w", err)
		}
	}
	for i, u := range users[:3] {
		if err := s.directory.AddMember(ctx, community.ID, u.ID, i == 0); err != nil {
			return fmt.Errorf("failed to add community member: %w", err)
		}
	}

	system := models.SystemSender
	batch := []*models.Notification{
		models.NewNotification(nil, &system, users[0].ID, "Welcome to Beacon"),
		models.NewNotification(&users[1].ID, nil, users[0].ID, "Bob Johnson sent you a message: \"hey\""),
	}
	if err := s.notifications.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to create test notifications: %w", err)
	}
	return nil
}

// Clean removes all rows from the SQL tables. Document-store collections are left alone.
func (s *Seeder) Clean(ctx context.Context) error {
	// Delete in reverse order of dependencies
	for _, table := range []string{"notifications", "messages", "community_members", "communities", "user_blocks", "follows", "users"} {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// Counts is a row count per seeded table
type Counts struct {
	Users         int64
	Follows       int64
	Blocks        int64
	Communities   int64
	Members       int64
	Messages      int64
	Notifications int64
	Unread        int64
}

// Verify counts what a seed run left behind. Notification and message counts
// come from the configured stores.
func (s *Seeder) Verify(ctx context.Context) (*Counts, error) {
	counts := &Counts{}
	db := s.db.WithContext(ctx)
	for _, c := range []struct {
		model interface{}
		dst   *int64
	}{
		{&models.User{}, &counts.Users},
		{&models.Follow{}, &counts.Follows},
		{&models.UserBlock{}, &counts.Blocks},
		{&models.Community{}, &counts.Communities},
		{&models.CommunityMember{}, &counts.Members},
	} {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	var userIDs []string
	if err := db.Model(&models.User{}).Pluck("id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for _, id := range userIDs {
		all, err := s.notifications.ListByRecipient(ctx, id)
		if err != nil {
			return nil, err
		}
		unread, err := s.notifications.ListUnread(ctx, id)
		if err != nil {
			return nil, err
		}
		counts.Notifications += int64(len(all))
		counts.Unread += int64(len(unread))
	}

	n, err := s.messages.Count(ctx)
	if err != nil {
		return nil, err
	}
	counts.Messages = n
	return counts, nil
}

// seedUsers creates users with realistic data
func (s *Seeder) seedUsers(ctx context.Context, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	seen := make(map[string]bool, count)

	for len(users) < count {
		username := gofakeit.Username()
		email := gofakeit.Email()
		if seen[username] || seen[email] {
			continue
		}
		var existing int64
		s.db.WithContext(ctx).Model(&models.User{}).Where("username = ? OR email = ?", username, email).Count(&existing)
		if existing > 0 {
			continue
		}
		seen[username], seen[email] = true, true

		user := &models.User{
			Email:     email,
			Username:  username,
			Name:      gofakeit.Name(),
			AvatarURL: fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username),
		}
		if err := s.directory.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	logger.Log.Info("Created users", zap.Int("count", len(users)))
	return users, nil
}

// seedFollows makes every user follow up to perUser random others
func (s *Seeder) seedFollows(ctx context.Context, users []*models.User, perUser int) error {
	for _, u := range users {
		for i := 0; i < perUser; i++ {
			other := users[rand.Intn(len(users))]
			if other.ID == u.ID {
				continue
			}
			if err := s.directory.CreateFollow(ctx, u.ID, other.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedBlocks(ctx context.Context, users []*models.User, count int) error {
	for i := 0; i < count; i++ {
		a, b := users[rand.Intn(len(users))], users[rand.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}
		if err := s.directory.Block(ctx, a.ID, b.ID); err != nil {
			return err
		}
	}
	return nil
}

// seedCommunities creates communities with one admin and a random membership
func (s *Seeder) seedCommunities(ctx context.Context, users []*models.User, count int) ([]*models.Community, error) {
	communities := make([]*models.Community, 0, count)
	for i := 0; i < count; i++ {
		community := &models.Community{
			Name:        fmt.Sprintf("%s %s", gofakeit.HipsterWord(), gofakeit.Noun()),
			Description: gofakeit.Sentence(12),
		}
		if err := s.directory.CreateCommunity(ctx, community); err != nil {
			// name collision with an earlier run
			logger.Log.Warn("Skipping community", zap.String("name", community.Name), zap.Error(err))
			continue
		}

		admin := users[rand.Intn(len(users))]
		if err := s.directory.AddMember(ctx, community.ID, admin.ID, true); err != nil {
			return nil, err
		}
		for _, u := range users {
			if u.ID != admin.ID && rand.Intn(3) == 0 {
				if err := s.directory.AddMember(ctx, community.ID, u.ID, false); err != nil {
					return nil, err
				}
			}
		}
		communities = append(communities, community)
	}
	return communities, nil
}

// seedMessages writes direct and community messages straight to the store,
// without notifications or pushes
func (s *Seeder) seedMessages(ctx context.Context, users []*models.User, communities []*models.Community, count int) error {
	for i := 0; i < count; i++ {
		sender := users[rand.Intn(len(users))]
		var msg *models.Message
		if len(communities) > 0 && rand.Intn(4) == 0 {
			community := communities[rand.Intn(len(communities))]
			msg = models.NewMessage(sender.ID, community.ID, models.MessageGroup, gofakeit.Sentence(8))
		} else {
			receiver := users[rand.Intn(len(users))]
			if receiver.ID == sender.ID {
				continue
			}
			msg = models.NewMessage(sender.ID, receiver.ID, models.MessageDirect, gofakeit.Sentence(8))
		}
		msg.Timestamp = gofakeit.DateRange(time.Now().AddDate(0, -1, 0), time.Now()).UTC()
		msg.IsRead = rand.Intn(2) == 0
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// seedNotifications gives every user a mix of user and system notifications
func (s *Seeder) seedNotifications(ctx context.Context, users []*models.User, perUser int) error {
	system := models.SystemSender
	for _, u := range users {
		batch := make([]*models.Notification, 0, perUser)
		for i := 0; i < perUser; i++ {
			var n *models.Notification
			if rand.Intn(5) == 0 {
				n = models.NewNotification(nil, &system, u.ID, gofakeit.Sentence(6))
			} else {
				from := users[rand.Intn(len(users))]
				if from.ID == u.ID {
					continue
				}
				n = models.NewNotification(&from.ID, nil, u.ID, fmt.Sprintf("%s %s", from.Name, gofakeit.Phrase()))
			}
			n.CreatedAt = gofakeit.DateRange(time.Now().AddDate(0, 0, -14), time.Now()).UTC()
			n.UpdatedAt = n.CreatedAt
			n.IsRead = rand.Intn(3) == 0
			batch = append(batch, n)
		}
		if len(batch) == 0 {
			continue
		}
		if err := s.notifications.CreateBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
