package hum

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/storage"
	"github.com/hummify/hummify-backend/internal/user"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestEnv 为每个测试搭建内存SQLite、miniredis和临时Blob存储
func setupTestEnv(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr := miniredis.RunT(t)
	database.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&user.User{}, &Hum{}, &Comment{}, &HumLike{}))
	database.DB = db

	store, err := storage.NewBlobStore(t.TempDir())
	require.NoError(t, err)
	UseBlobStore(store)

	return mr
}

// newTestUser 直接插入一个用户文档，绕开身份网关
func newTestUser(t *testing.T, name string) *user.User {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	u := &user.User{
		UUID:     id.String(),
		Email:    name + "@example.com",
		Username: name,
	}
	require.NoError(t, database.DB.Create(u).Error)
	return u
}

func reloadUser(t *testing.T, uid string) *user.User {
	t.Helper()
	var u user.User
	require.NoError(t, database.DB.Where("uuid = ?", uid).First(&u).Error)
	return &u
}

func TestIsAudioUpload(t *testing.T) {
	cases := []struct {
		contentType string
		filename    string
		want        bool
	}{
		{"audio/wav", "hum.wav", true},
		{"audio/mpeg", "hum.mp3", true},
		{"audio/webm;codecs=opus", "hum.webm", true},
		{"video/webm", "hum.webm", true},
		{"video/webm", "hum.mp4", false},
		{"application/octet-stream", "hum.wav", true},
		{"application/octet-stream", "hum.txt", false},
		{"", "hum.flac", true},
		{"", "hum.pdf", false},
		{"image/png", "hum.wav", false},
		{"text/plain", "notes.txt", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsAudioUpload(tc.contentType, tc.filename),
			"contentType=%q filename=%q", tc.contentType, tc.filename)
	}
}

func TestUploadRejectsNonAudioBeforeStorage(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	_, err := Upload(author, []byte("not audio"), "text/plain", "notes.txt", "My hum", "")
	assert.ErrorIs(t, err, ErrNotAudio)

	_, err = Upload(author, []byte("audio"), "audio/wav", "hum.wav", "   ", "")
	assert.ErrorIs(t, err, ErrEmptyTitle)

	// 校验失败不应产生任何文档或计数
	var count int64
	database.DB.Model(&Hum{}).Count(&count)
	assert.EqualValues(t, 0, count)
	assert.Equal(t, 0, reloadUser(t, author.UUID).TotalHums)
}

func TestUploadCreatesHumAndIncrementsCounter(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	h, err := Upload(author, []byte("RIFF...."), "audio/wav", "hum.wav", "My first hum", "so melodic")
	require.NoError(t, err)

	assert.Equal(t, author.UUID, h.UserID)
	assert.Equal(t, "alice", h.Username)
	assert.Equal(t, 0, h.Likes)
	assert.Contains(t, h.AudioURL, "/static/hums/"+author.UUID+"/")

	// 作者的totalHums在同一事务中自增
	assert.Equal(t, 1, reloadUser(t, author.UUID).TotalHums)

	// Feed索引和脏集合登记
	members, err := database.RDB.ZRange(database.Ctx, FeedKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Contains(t, members, h.ID)
	dirty, err := database.RDB.SIsMember(database.Ctx, user.DirtyUsersKey, author.UUID).Result()
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestListFeedOrderingAndLimit(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	// 手工插入三条不同时间的哼唱
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		id, _ := uuid.NewV7()
		require.NoError(t, database.DB.Create(&Hum{
			ID:        id.String(),
			UserID:    author.UUID,
			Username:  "alice",
			Title:     fmt.Sprintf("hum-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	entries, err := ListFeed("", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// 创建时间倒序：最新的在前
	assert.Equal(t, "hum-2", entries[0].Title)
	assert.Equal(t, "hum-1", entries[1].Title)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
}

func TestListFeedServesFromRedisIndex(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	// 直接入库三条哼唱，只把其中两条写进Feed索引
	base := time.Now().Add(-time.Hour)
	ids := make([]string, 3)
	for i := 0; i < 3; i++ {
		id, _ := uuid.NewV7()
		ids[i] = id.String()
		require.NoError(t, database.DB.Create(&Hum{
			ID:        ids[i],
			UserID:    author.UUID,
			Username:  "alice",
			Title:     fmt.Sprintf("hum-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, database.RDB.ZAdd(database.Ctx, FeedKey,
		redis.Z{Score: 1, Member: ids[0]},
		redis.Z{Score: 2, Member: ids[1]},
	).Err())

	// 索引非空时读路径以索引为准：第三条不在索引中，不应出现
	entries, err := ListFeed("", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hum-1", entries[0].Title)
	assert.Equal(t, "hum-0", entries[1].Title)

	// 索引清空后回落到文档库的全表排序
	require.NoError(t, database.RDB.Del(database.Ctx, FeedKey).Err())
	entries, err = ListFeed("", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "hum-2", entries[0].Title)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")
	liker := newTestUser(t, "bob")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)

	// 点赞
	state, err := ToggleLike(liker.UUID, h.ID)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.Likes)
	assert.Equal(t, 1, reloadUser(t, author.UUID).TotalLikes)

	// 取消点赞后恢复原状
	state, err = ToggleLike(liker.UUID, h.ID)
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Equal(t, 0, state.Likes)
	assert.Equal(t, 0, reloadUser(t, author.UUID).TotalLikes)

	var likeRows int64
	database.DB.Model(&HumLike{}).Count(&likeRows)
	assert.EqualValues(t, 0, likeRows)
}

func TestToggleLikeAnnotatesFeed(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")
	liker := newTestUser(t, "bob")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)

	_, err = ToggleLike(liker.UUID, h.ID)
	require.NoError(t, err)

	// 点赞者视角isLiked为true，作者视角为false
	entries, err := ListFeed(liker.UUID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsLiked)

	entries, err = ListFeed(author.UUID, 0)
	require.NoError(t, err)
	assert.False(t, entries[0].IsLiked)
}

func TestToggleLikeUnknownHum(t *testing.T) {
	setupTestEnv(t)
	liker := newTestUser(t, "bob")

	_, err := ToggleLike(liker.UUID, "no-such-hum")
	assert.ErrorIs(t, err, ErrHumNotFound)
}

func TestToggleLikeInFlightGuard(t *testing.T) {
	setupTestEnv(t)
	liker := newTestUser(t, "bob")

	key := "hum-1:" + liker.UUID
	require.True(t, likeGuard.tryAcquire(key))
	defer likeGuard.release(key)

	// 同一用户对同一哼唱的在途变更触发互斥
	_, err := ToggleLike(liker.UUID, "hum-1")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	// 其他用户不受影响（目标不存在，但要能走进事务）
	other := newTestUser(t, "carol")
	_, err = ToggleLike(other.UUID, "hum-1")
	assert.ErrorIs(t, err, ErrHumNotFound)
}

func TestAddCommentAppearsOnceAndCounts(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")
	commenter := newTestUser(t, "bob")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)

	comment, err := AddComment(commenter, h.ID, "nice hum!")
	require.NoError(t, err)
	assert.Equal(t, "bob", comment.Username)

	// 评论只出现一次，计数器只加一
	entries, err := ListFeed("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Comments, 1)
	assert.Equal(t, "nice hum!", entries[0].Comments[0].Text)
	assert.Equal(t, 1, reloadUser(t, commenter.UUID).TotalComments)

	// 空评论和不存在的哼唱
	_, err = AddComment(commenter, h.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyComment)
	_, err = AddComment(commenter, "no-such-hum", "hello")
	assert.ErrorIs(t, err, ErrHumNotFound)
}

func TestCommentsKeepAppendOrder(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := AddComment(author, h.ID, fmt.Sprintf("comment-%d", i))
		require.NoError(t, err)
	}

	entries, err := ListFeed("", 0)
	require.NoError(t, err)
	require.Len(t, entries[0].Comments, 3)
	for i, c := range entries[0].Comments {
		assert.Equal(t, fmt.Sprintf("comment-%d", i), c.Text)
	}
}

func TestRemixInheritsOriginal(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")
	remixer := newTestUser(t, "bob")

	original, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "Foo", "")
	require.NoError(t, err)
	require.NoError(t, RecordMatch(original.ID, &MatchedSong{Title: "Song A", Artist: "Artist A", Confidence: 0.9}))

	remix, err := Remix(remixer, original.ID, RemixParams{Pitch: 2, Speed: 1.5})
	require.NoError(t, err)

	assert.Equal(t, "Remix of Foo", remix.Title)
	assert.Equal(t, "Remixed with pitch: 2, speed: 1.5x", remix.Description)
	assert.True(t, remix.IsRemix)
	require.NotNil(t, remix.OriginalHumID)
	assert.Equal(t, original.ID, *remix.OriginalHumID)
	assert.Equal(t, original.AudioURL, remix.AudioURL)
	require.NotNil(t, remix.MatchedSong)
	assert.Equal(t, "Song A", remix.MatchedSong.Title)
	require.NotNil(t, remix.RemixParams)
	assert.Equal(t, 2, remix.RemixParams.Pitch)

	// 混音计入作者的totalHums
	assert.Equal(t, 1, reloadUser(t, remixer.UUID).TotalHums)
}

func TestRemixValidation(t *testing.T) {
	setupTestEnv(t)
	remixer := newTestUser(t, "bob")

	_, err := Remix(remixer, "any", RemixParams{Pitch: 13, Speed: 1})
	assert.ErrorIs(t, err, ErrInvalidRemixParams)
	_, err = Remix(remixer, "any", RemixParams{Speed: 0.1})
	assert.ErrorIs(t, err, ErrInvalidRemixParams)
	_, err = Remix(remixer, "no-such-hum", RemixParams{Speed: 1})
	assert.ErrorIs(t, err, ErrHumNotFound)
}

func TestRemixParamsValid(t *testing.T) {
	assert.True(t, RemixParams{Speed: 1}.Valid())
	assert.True(t, RemixParams{Pitch: -12, Speed: 0.5, Echo: 100, Reverb: 100, Reverse: true}.Valid())
	assert.False(t, RemixParams{Pitch: -13, Speed: 1}.Valid())
	assert.False(t, RemixParams{Speed: 2.1}.Valid())
	assert.False(t, RemixParams{Speed: 1, Echo: 101}.Valid())
	assert.False(t, RemixParams{Speed: 1, Reverb: -1}.Valid())
}

func TestRecordMatchIncrementsSongsIdentified(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)

	require.NoError(t, RecordMatch(h.ID, &MatchedSong{Title: "Song A", Confidence: 0.87}))
	assert.Equal(t, 1, reloadUser(t, author.UUID).SongsIdentified)

	var stored Hum
	require.NoError(t, database.DB.Where("id = ?", h.ID).First(&stored).Error)
	require.NotNil(t, stored.MatchedSong)
	assert.Equal(t, "Song A", stored.MatchedSong.Title)
	assert.InDelta(t, 0.87, stored.MatchedSong.Confidence, 1e-9)

	assert.ErrorIs(t, RecordMatch("no-such-hum", &MatchedSong{Title: "X"}), ErrHumNotFound)
	assert.NoError(t, RecordMatch(h.ID, nil))
}

func TestReconcileRepairsCounterDrift(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")
	liker := newTestUser(t, "bob")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)
	_, err = ToggleLike(liker.UUID, h.ID)
	require.NoError(t, err)
	_, err = AddComment(liker, h.ID, "nice")
	require.NoError(t, err)

	// 注入漂移：把作者的计数器改错
	require.NoError(t, database.DB.Model(&user.User{}).Where("uuid = ?", author.UUID).
		Updates(map[string]interface{}{"total_hums": 99, "total_likes": 0}).Error)

	changed, err := ReconcileUserCounters(author.UUID)
	require.NoError(t, err)
	assert.True(t, changed)

	repaired := reloadUser(t, author.UUID)
	assert.Equal(t, 1, repaired.TotalHums)
	assert.Equal(t, 1, repaired.TotalLikes)

	// 无漂移时对账是空操作
	changed, err = ReconcileUserCounters(author.UUID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestGetProfileAggregates(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")
	visitor := newTestUser(t, "bob")

	// 新用户的资料页：零计数、无哼唱
	profile, err := GetProfile(author.UUID, "")
	require.NoError(t, err)
	assert.Empty(t, profile.Hums)
	assert.Equal(t, 0, profile.Stats.TotalHums)

	first, err := Upload(author, []byte("audio"), "audio/wav", "a.wav", "First", "")
	require.NoError(t, err)
	_, err = Upload(author, []byte("audio"), "audio/wav", "b.wav", "Second", "")
	require.NoError(t, err)
	_, err = ToggleLike(visitor.UUID, first.ID)
	require.NoError(t, err)

	profile, err = GetProfile(author.UUID, visitor.UUID)
	require.NoError(t, err)
	require.Len(t, profile.Hums, 2)
	assert.Equal(t, 2, profile.Stats.TotalHums)
	assert.Equal(t, 1, profile.Stats.TotalLikes)

	// 访客视角：被点赞的那条带isLiked标记
	for _, entry := range profile.Hums {
		assert.Equal(t, entry.ID == first.ID, entry.IsLiked)
	}

	_, err = GetProfile("no-such-user", "")
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestWarmupCacheRebuildsIndexes(t *testing.T) {
	mr := setupTestEnv(t)
	author := newTestUser(t, "alice")
	liker := newTestUser(t, "bob")

	h, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "My hum", "")
	require.NoError(t, err)
	_, err = ToggleLike(liker.UUID, h.ID)
	require.NoError(t, err)

	// 模拟Redis重启：所有键丢失
	mr.FlushAll()

	require.NoError(t, WarmupCache())

	members, err := database.RDB.ZRange(database.Ctx, FeedKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Contains(t, members, h.ID)
	isMember, err := database.RDB.SIsMember(database.Ctx, LikersKey(h.ID), liker.UUID).Result()
	require.NoError(t, err)
	assert.True(t, isMember)
}
