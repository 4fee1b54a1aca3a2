package hum

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/storage"
	"github.com/hummify/hummify-backend/internal/user"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 哼唱仓库对外暴露的错误集合
var (
	// ErrNotAudio 在任何存储或网络操作之前返回
	ErrNotAudio = errors.New("只支持音频文件")
	// ErrEmptyTitle 同样是本地校验错误
	ErrEmptyTitle = errors.New("标题不能为空")
	// ErrEmptyComment 评论内容不能为空
	ErrEmptyComment = errors.New("评论内容不能为空")
	// ErrHumNotFound 目标哼唱不存在
	ErrHumNotFound = errors.New("找不到指定的哼唱")
	// ErrMutationInFlight 同一哼唱已有未完成的点赞变更
	ErrMutationInFlight = errors.New("操作过于频繁，请稍候")
	// ErrInvalidRemixParams 混音参数超出允许范围
	ErrInvalidRemixParams = errors.New("混音参数超出允许范围")
)

// blobStore 是模块级的Blob存储实例，在启动时注入
var blobStore *storage.BlobStore

// UseBlobStore 在启动阶段注入Blob存储
func UseBlobStore(s *storage.BlobStore) {
	blobStore = s
}

// audioExtensions 是在缺少Content-Type时兜底的扩展名白名单
var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true,
	".ogg": true, ".webm": true, ".flac": true,
}

// IsAudioUpload 判断上传是否是音频。
// 这是上传路径的第一道校验，必须发生在任何存储或网络调用之前。
func IsAudioUpload(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "audio/") {
		return true
	}
	// 浏览器录音常见的容器类型
	if contentType == "video/webm" || contentType == "application/octet-stream" {
		return audioExtensions[strings.ToLower(filepath.Ext(filename))]
	}
	if contentType == "" {
		return audioExtensions[strings.ToLower(filepath.Ext(filename))]
	}
	return false
}

// markUserDirty 把用户登记进对账脏集合；Redis失败只记日志，
// 因为定时对账会全量兜底。
func markUserDirty(uid string) {
	if err := database.RDB.SAdd(database.Ctx, user.DirtyUsersKey, uid).Err(); err != nil {
		fmt.Printf("警告: 无法登记脏用户 %s: %v\n", uid, err)
	}
}

// addToFeedIndex 把哼唱写入Redis的Feed索引；失败只记日志，
// Feed读取路径在Redis不可用时会直接走文档库。
func addToFeedIndex(h *Hum) {
	member := redis.Z{Score: float64(h.CreatedAt.UnixMilli()), Member: h.ID}
	if err := database.RDB.ZAdd(database.Ctx, FeedKey, member).Err(); err != nil {
		fmt.Printf("警告: 无法更新Feed索引: %v\n", err)
	}
}

// Upload 上传一条新的哼唱。
// Blob落盘后，文档创建和作者totalHums自增在同一个事务中完成，
// 避免了"计数器落后于文档"的部分失败漂移。
func Upload(author *user.User, data []byte, contentType, filename, title, description string) (*Hum, error) {
	// 1. 本地校验，不触达存储
	if !IsAudioUpload(contentType, filename) {
		return nil, ErrNotAudio
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	// 2. 上传Blob到按时间戳寻址的存储路径 hums/{userId}/hum_{timestamp}.wav
	blobName := fmt.Sprintf("hum_%d.wav", time.Now().UnixMilli())
	audioURL, err := blobStore.Save(author.UUID, blobName, data)
	if err != nil {
		return nil, fmt.Errorf("无法保存音频: %w", err)
	}

	newID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成哼唱ID: %w", err)
	}
	newHum := &Hum{
		ID:          newID.String(),
		UserID:      author.UUID,
		Username:    author.ResolvedName(),
		Title:       title,
		Description: description,
		AudioURL:    audioURL,
		CreatedAt:   time.Now(),
	}

	// 3. 文档创建和计数器自增在同一事务中
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newHum).Error; err != nil {
			return err
		}
		return tx.Model(&user.User{}).Where("uuid = ?", author.UUID).
			Update("total_hums", gorm.Expr("total_hums + 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建哼唱文档: %w", err)
	}

	// 4. 事务提交后更新Feed索引并登记对账
	addToFeedIndex(newHum)
	markUserDirty(author.UUID)

	return newHum, nil
}

// FeedEntry 是Feed条目的视图模型：哼唱文档加上请求者视角的isLiked标记
type FeedEntry struct {
	Hum
	IsLiked bool `json:"isLiked"`
}

// DefaultFeedLimit 是Feed单次返回的默认条数
const DefaultFeedLimit = 20

// ListFeed 返回按创建时间倒序的最近N条哼唱，
// 每条都带有请求者是否已点赞的标记。requesterID为空表示匿名。
// 读路径优先走Redis的Feed索引取ID再回表；索引为空或读取失败时
// 回落到文档库的全表排序。
func ListFeed(requesterID string, limit int) ([]FeedEntry, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	if database.IsRedisHealthy() {
		ids, err := database.RDB.ZRevRange(database.Ctx, FeedKey, 0, int64(limit-1)).Result()
		if err == nil && len(ids) > 0 {
			hums, err := humsByIDs(ids)
			if err == nil {
				return annotateLiked(hums, requesterID)
			}
			fmt.Printf("警告: 无法按Feed索引回表读取哼唱: %v\n", err)
		}
	}

	var hums []Hum
	err := database.DB.
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.id asc")
		}).
		Order("created_at desc").
		Limit(limit).
		Find(&hums).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取Feed: %w", err)
	}

	return annotateLiked(hums, requesterID)
}

// humsByIDs 按给定的ID集合回表读取哼唱，返回顺序与传入的ID顺序一致
func humsByIDs(ids []string) ([]Hum, error) {
	var hums []Hum
	err := database.DB.
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.id asc")
		}).
		Where("id IN ?", ids).
		Find(&hums).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Hum, len(hums))
	for _, h := range hums {
		byID[h.ID] = h
	}
	ordered := make([]Hum, 0, len(hums))
	for _, id := range ids {
		if h, ok := byID[id]; ok {
			ordered = append(ordered, h)
		}
	}
	return ordered, nil
}

// annotateLiked 为一组哼唱标注请求者的点赞状态。
// 优先走Redis的点赞者Set（Pipeline批量查询），Redis不可用时回落到文档库。
func annotateLiked(hums []Hum, requesterID string) ([]FeedEntry, error) {
	entries := make([]FeedEntry, len(hums))
	for i, h := range hums {
		entries[i] = FeedEntry{Hum: h}
	}
	if requesterID == "" || len(hums) == 0 {
		return entries, nil
	}

	if database.IsRedisHealthy() {
		pipe := database.RDB.Pipeline()
		cmds := make([]*redis.BoolCmd, len(hums))
		for i, h := range hums {
			cmds[i] = pipe.SIsMember(database.Ctx, LikersKey(h.ID), requesterID)
		}
		if _, err := pipe.Exec(database.Ctx); err == nil {
			for i := range entries {
				entries[i].IsLiked = cmds[i].Val()
			}
			return entries, nil
		}
		fmt.Println("警告: 点赞状态批量查询失败，回落到文档库。")
	}

	// 文档库兜底：一次查询取出请求者对这批哼唱的点赞行
	ids := make([]string, len(hums))
	for i, h := range hums {
		ids[i] = h.ID
	}
	var likes []HumLike
	if err := database.DB.Where("user_id = ? AND hum_id IN ?", requesterID, ids).Find(&likes).Error; err != nil {
		return nil, fmt.Errorf("无法读取点赞状态: %w", err)
	}
	liked := make(map[string]bool, len(likes))
	for _, l := range likes {
		liked[l.HumID] = true
	}
	for i := range entries {
		entries[i].IsLiked = liked[entries[i].Hum.ID]
	}
	return entries, nil
}

// ToggleState 是一次点赞切换后的权威结果
type ToggleState struct {
	Liked bool `json:"isLiked"`
	Likes int  `json:"likes"`
}

// ToggleLike 切换请求者对一条哼唱的点赞状态。
// 点赞行、计数缓存和哼唱作者的totalLikes在同一个事务中变更；
// 在途互斥保证同一会话对同一哼唱最多只有一个未完成的变更。
func ToggleLike(requesterID, humID string) (*ToggleState, error) {
	guardKey := humID + ":" + requesterID
	if !likeGuard.tryAcquire(guardKey) {
		return nil, ErrMutationInFlight
	}
	defer likeGuard.release(guardKey)

	var state ToggleState
	var ownerID string

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// 1. 锁定哼唱行，防止并发切换互相覆盖计数
		var h Hum
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", humID).First(&h).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHumNotFound
			}
			return err
		}
		ownerID = h.UserID

		// 2. 读取当前点赞者集合中的成员资格，决定加还是减
		var existing HumLike
		err := tx.Where("hum_id = ? AND user_id = ?", humID, requesterID).First(&existing).Error
		switch {
		case err == nil:
			// 已点赞 -> 取消
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			if h.Likes > 0 {
				h.Likes--
			}
			state = ToggleState{Liked: false, Likes: h.Likes}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 未点赞 -> 添加
			if err := tx.Create(&HumLike{HumID: humID, UserID: requesterID}).Error; err != nil {
				return err
			}
			h.Likes++
			state = ToggleState{Liked: true, Likes: h.Likes}
		default:
			return err
		}

		if err := tx.Model(&Hum{}).Where("id = ?", humID).
			Update("likes", h.Likes).Error; err != nil {
			return err
		}

		// 3. 哼唱作者的totalLikes跟随变化
		delta := "total_likes + 1"
		if !state.Liked {
			delta = "total_likes - 1"
		}
		return tx.Model(&user.User{}).Where("uuid = ?", ownerID).
			Update("total_likes", gorm.Expr(delta)).Error
	})
	if err != nil {
		return nil, err
	}

	// 4. 事务提交后同步Redis的点赞者Set；失败只记日志，预热会修复
	var redisErr error
	if state.Liked {
		redisErr = database.RDB.SAdd(database.Ctx, LikersKey(humID), requesterID).Err()
	} else {
		redisErr = database.RDB.SRem(database.Ctx, LikersKey(humID), requesterID).Err()
	}
	if redisErr != nil {
		fmt.Printf("警告: 无法同步点赞缓存: %v\n", redisErr)
	}
	markUserDirty(ownerID)

	return &state, nil
}

// AddComment 向哼唱追加一条不可变评论，并自增评论者的totalComments。
// 两个写操作在同一个事务中完成。
func AddComment(author *user.User, humID, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}

	comment := &Comment{
		HumID:     humID,
		UserID:    author.UUID,
		Username:  author.ResolvedName(),
		Text:      text,
		CreatedAt: time.Now(),
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Hum{}).Where("id = ?", humID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrHumNotFound
		}
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&user.User{}).Where("uuid = ?", author.UUID).
			Update("total_comments", gorm.Expr("total_comments + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	markUserDirty(author.UUID)
	return comment, nil
}

// Profile 是资料页的视图模型：用户文档、统计和其全部哼唱（按时间倒序）
type Profile struct {
	User  *user.User
	Hums  []FeedEntry
	Stats user.StatsResponse
}

// GetProfile 聚合一个用户的资料页数据。
// requesterID用于标注点赞状态，可以与userID不同。
func GetProfile(userID, requesterID string) (*Profile, error) {
	u, err := user.GetByUUID(userID)
	if err != nil {
		return nil, err
	}

	var hums []Hum
	err = database.DB.
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.id asc")
		}).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&hums).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取用户的哼唱: %w", err)
	}

	entries, err := annotateLiked(hums, requesterID)
	if err != nil {
		return nil, err
	}

	return &Profile{
		User:  u,
		Hums:  entries,
		Stats: user.FormatStats(u),
	}, nil
}

// Remix 基于一条已有哼唱合成一条新的哼唱文档。
// 本层不做任何信号处理：音频引用与原始哼唱完全相同，
// 实际的混音由外部后端完成后另行上传。
func Remix(author *user.User, originalHumID string, params RemixParams) (*Hum, error) {
	// 1. 参数范围校验，不触达存储
	if !params.Valid() {
		return nil, ErrInvalidRemixParams
	}

	// 2. 读取原始哼唱
	var original Hum
	if err := database.DB.Where("id = ?", originalHumID).First(&original).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHumNotFound
		}
		return nil, fmt.Errorf("无法读取原始哼唱: %w", err)
	}

	newID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成哼唱ID: %w", err)
	}

	paramsCopy := params
	originalID := original.ID
	remix := &Hum{
		ID:            newID.String(),
		UserID:        author.UUID,
		Username:      author.ResolvedName(),
		Title:         fmt.Sprintf("Remix of %s", original.Title),
		Description:   fmt.Sprintf("Remixed with pitch: %d, speed: %gx", params.Pitch, params.Speed),
		AudioURL:      original.AudioURL,
		MatchedSong:   original.MatchedSong,
		IsRemix:       true,
		OriginalHumID: &originalID,
		RemixParams:   &paramsCopy,
		CreatedAt:     time.Now(),
	}

	// 3. 文档创建和作者totalHums自增在同一事务中
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(remix).Error; err != nil {
			return err
		}
		return tx.Model(&user.User{}).Where("uuid = ?", author.UUID).
			Update("total_hums", gorm.Expr("total_hums + 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建混音文档: %w", err)
	}

	addToFeedIndex(remix)
	markUserDirty(author.UUID)

	return remix, nil
}

// RecordMatch 把识别出的最佳结果写入哼唱文档，
// 并自增作者的songsIdentified计数器。
func RecordMatch(humID string, match *MatchedSong) error {
	if match == nil {
		return nil
	}

	var ownerID string
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var h Hum
		if err := tx.Where("id = ?", humID).First(&h).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHumNotFound
			}
			return err
		}
		ownerID = h.UserID
		// 通过加载后的模型写入，serializer:json才会生效
		h.MatchedSong = match
		if err := tx.Model(&h).Select("matched_song").Updates(&h).Error; err != nil {
			return err
		}
		return tx.Model(&user.User{}).Where("uuid = ?", h.UserID).
			Update("songs_identified", gorm.Expr("songs_identified + 1")).Error
	})
	if err != nil {
		return err
	}

	markUserDirty(ownerID)
	return nil
}
