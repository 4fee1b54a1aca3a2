package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/matcher"
	"github.com/hummify/hummify-backend/internal/platform/config"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/user"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestEnv 搭建文档库、Redis和一个指向测试服务器的识别客户端
func setupTestEnv(t *testing.T, handler http.Handler) {
	t.Helper()

	mr := miniredis.RunT(t)
	database.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&user.User{}, &hum.Hum{}, &hum.Comment{}, &hum.HumLike{}))
	database.DB = db

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	UseMatcherClient(matcher.NewClient(config.MatcherConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}))
	database.UpdateMatcherStatus(true)
}

func seedHum(t *testing.T, title string) {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, database.DB.Create(&hum.Hum{
		ID:        id.String(),
		UserID:    "author-1",
		Username:  "alice",
		Title:     title,
		CreatedAt: time.Now(),
	}).Error)
}

func TestLoadPrefersEnhancedFeed(t *testing.T) {
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hums/feed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hums":[{"id":"h1","title":"Enhanced hum"}]}`))
	}))

	result, err := Load(context.Background(), "", "token", true, 20)
	require.NoError(t, err)
	assert.Equal(t, SourceEnhanced, result.Source)
	require.Len(t, result.Hums, 1)
	assert.Equal(t, "Enhanced hum", result.Hums[0].Title)
}

func TestLoadFallsBackOnEnhancedFailure(t *testing.T) {
	var calls atomic.Int32
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	seedHum(t, "Fallback hum")

	result, err := Load(context.Background(), "", "token", true, 20)

	// 增强Feed失败不是调用方可见的错误，回退结果正常返回
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, result.Source)
	require.Len(t, result.Hums, 1)
	assert.Equal(t, "Fallback hum", result.Hums[0].Title)

	// 第一层只尝试一次，不做重试
	assert.EqualValues(t, 1, calls.Load())
}

func TestLoadSurvivesCallerCancellation(t *testing.T) {
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hums":[{"id":"h1","title":"Enhanced hum"}]}`))
	}))

	// 首个调用方的上下文已被取消；合并执行与它解耦，结果照常返回
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Load(ctx, "", "token", true, 20)
	require.NoError(t, err)
	assert.Equal(t, SourceEnhanced, result.Source)
	require.Len(t, result.Hums, 1)
}

func TestLoadSkipsEnhancedWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	seedHum(t, "Plain hum")

	result, err := Load(context.Background(), "", "token", false, 20)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, result.Source)
	assert.EqualValues(t, 0, calls.Load())
}

func TestLoadSkipsEnhancedWhenMatcherUnhealthy(t *testing.T) {
	var calls atomic.Int32
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	seedHum(t, "Plain hum")

	// 健康检查已把识别服务标记为不可用，第一层直接跳过
	database.UpdateMatcherStatus(false)
	t.Cleanup(func() { database.UpdateMatcherStatus(true) })

	result, err := Load(context.Background(), "", "token", true, 20)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, result.Source)
	assert.EqualValues(t, 0, calls.Load())
}

func TestRemixParamsFromFormDefaults(t *testing.T) {
	c := newFormContext(t, map[string]string{})
	params, err := remixParamsFromForm(c)
	require.NoError(t, err)
	assert.Equal(t, 0, params.Pitch)
	assert.Equal(t, 1.0, params.Speed)
	assert.False(t, params.Reverse)
}

func TestRemixParamsFromFormParsesAndValidates(t *testing.T) {
	c := newFormContext(t, map[string]string{
		"pitch": "-3", "speed": "1.5", "echo": "40", "reverb": "10", "reverse": "true",
	})
	params, err := remixParamsFromForm(c)
	require.NoError(t, err)
	assert.Equal(t, -3, params.Pitch)
	assert.Equal(t, 1.5, params.Speed)
	assert.Equal(t, 40, params.Echo)
	assert.Equal(t, 10, params.Reverb)
	assert.True(t, params.Reverse)

	// 超范围和非数字都映射到同一个校验错误
	c = newFormContext(t, map[string]string{"pitch": "13"})
	_, err = remixParamsFromForm(c)
	assert.ErrorIs(t, err, hum.ErrInvalidRemixParams)

	c = newFormContext(t, map[string]string{"speed": "fast"})
	_, err = remixParamsFromForm(c)
	assert.ErrorIs(t, err, hum.ErrInvalidRemixParams)
}
