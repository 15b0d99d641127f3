// Package testhelpers 提供测试用的内存数据库和数据构造函数
package testhelpers

import (
	"fmt"
	"testing"

	"feedbackhub/internal/db"
	"feedbackhub/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB 每个测试一个独立的内存 SQLite 库。
// 单连接：事务内的代码必须使用 tx，否则会阻塞。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(conn))
	return conn
}

// CreateUserPrincipal 创建一个带邮箱的用户 principal
func CreateUserPrincipal(t *testing.T, conn *gorm.DB, name string) *models.Principal {
	t.Helper()

	user := &models.User{Name: name, Email: name + "@example.com"}
	require.NoError(t, conn.Create(user).Error)

	principal := &models.Principal{
		Type:        models.PrincipalTypeUser,
		Role:        "user",
		UserID:      &user.ID,
		User:        user,
		DisplayName: name,
	}
	require.NoError(t, conn.Omit("User").Create(principal).Error)
	return principal
}

// CreateServicePrincipal 创建没有用户的服务 principal
func CreateServicePrincipal(t *testing.T, conn *gorm.DB, name string) *models.Principal {
	t.Helper()

	principal := &models.Principal{
		Type:        models.PrincipalTypeService,
		Role:        "member",
		DisplayName: name,
	}
	require.NoError(t, conn.Create(principal).Error)
	return principal
}

func CreateBoard(t *testing.T, conn *gorm.DB, slug string) *models.Board {
	t.Helper()

	board := &models.Board{Name: slug, Slug: slug, IsPublic: true}
	require.NoError(t, conn.Create(board).Error)
	return board
}

func CreatePost(t *testing.T, conn *gorm.DB, board *models.Board, author *models.Principal, title string) *models.Post {
	t.Helper()

	post := &models.Post{
		BoardID:     board.ID,
		PrincipalID: author.ID,
		Title:       title,
		Content:     "content of " + title,
	}
	require.NoError(t, conn.Omit("Board", "Principal", "Status").Create(post).Error)
	post.Board = *board
	post.Principal = *author
	return post
}

func CreateStatus(t *testing.T, conn *gorm.DB, slug string) *models.PostStatus {
	t.Helper()

	status := &models.PostStatus{Name: slug, Slug: slug}
	require.NoError(t, conn.Create(status).Error)
	return status
}

func CreateWorkspace(t *testing.T, conn *gorm.DB) *models.WorkspaceSettings {
	t.Helper()

	settings := &models.WorkspaceSettings{Name: "Acme", Slug: "acme"}
	require.NoError(t, conn.Create(settings).Error)
	return settings
}
