package hum

import (
	"time"

	"gorm.io/gorm"
)

// Hum 定义了哼唱文档在文档库中的持久化模型。
// 点赞者集合以HumLike行存储（Redis中有对应的Set缓存），
// 评论以Comment行内嵌在哼唱之下，不可独立寻址。
type Hum struct {
	// ID 是哼唱的主键，UUIDv7字符串
	ID string `gorm:"primarykey;type:varchar(36)" json:"id"`

	// UserID 是作者的UUID
	UserID string `gorm:"index;not null" json:"userId"`

	// Username 是作者名的反规范化快照，随文档一起读出
	Username string `json:"username"`

	// Title 是哼唱标题
	Title string `gorm:"not null" json:"title"`

	// Description 是可选的描述
	Description string `json:"description"`

	// AudioURL 是音频Blob的引用
	AudioURL string `json:"audioURL"`

	// Likes 是点赞数的反规范化缓存，与HumLike行在同一事务中变更
	Likes int `json:"likes"`

	// MatchedSong 是可选的识别结果，JSON序列化存储
	MatchedSong *MatchedSong `gorm:"serializer:json" json:"matchedSong"`

	// IsRemix 标记该哼唱是否是另一条哼唱的混音
	IsRemix bool `json:"isRemix"`

	// OriginalHumID 在IsRemix为true时指向同集合中的原始哼唱
	OriginalHumID *string `gorm:"index" json:"originalHumId"`

	// RemixParams 是可选的混音参数记录，JSON序列化存储
	RemixParams *RemixParams `gorm:"serializer:json" json:"remixParams"`

	// Comments 是按追加顺序排列的评论序列
	Comments []Comment `gorm:"foreignKey:HumID" json:"comments"`

	// 部分gorm.Model，由GORM自动管理
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Comment 定义了内嵌在哼唱下的评论。
// 一经追加不可变；自增ID即追加顺序。
type Comment struct {
	ID uint `gorm:"primarykey" json:"-"`

	// HumID 是所属哼唱的ID
	HumID string `gorm:"index;not null" json:"-"`

	// UserID 是评论作者的UUID
	UserID string `gorm:"not null" json:"userId"`

	// Username 是评论作者名的反规范化快照
	Username string `json:"username"`

	// Text 是评论内容
	Text string `gorm:"not null" json:"text"`

	CreatedAt time.Time `json:"createdAt"`
}

// HumLike 定义了点赞者集合的一行。
// (HumID, UserID) 的唯一索引保证了集合的唯一性约束。
type HumLike struct {
	ID uint `gorm:"primarykey"`

	HumID  string `gorm:"uniqueIndex:idx_hum_liker;not null"`
	UserID string `gorm:"uniqueIndex:idx_hum_liker;not null"`

	CreatedAt time.Time
}

// MatchedSong 是曲目识别的候选结果。
// Confidence 统一为[0,1]区间的小数，归一化发生在matcher客户端边界。
type MatchedSong struct {
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	Album         string  `json:"album,omitempty"`
	Confidence    float64 `json:"confidence"`
	SpotifyURL    string  `json:"spotify_url,omitempty"`
	YoutubeURL    string  `json:"youtube_url,omitempty"`
	AppleMusicURL string  `json:"apple_music_url,omitempty"`
}

// RemixParams 是混音参数记录。实际的音频处理只发生在外部后端。
type RemixParams struct {
	// Pitch 是半音数的整数偏移，范围[-12,12]
	Pitch int `json:"pitch"`
	// Speed 是速度倍率，范围[0.5,2.0]
	Speed float64 `json:"speed"`
	// Echo 是回声百分比，范围[0,100]
	Echo int `json:"echo"`
	// Reverb 是混响百分比，范围[0,100]
	Reverb int `json:"reverb"`
	// Reverse 标记是否倒放
	Reverse bool `json:"reverse"`
}

// Valid 检查混音参数是否全部落在允许的范围内
func (p RemixParams) Valid() bool {
	if p.Pitch < -12 || p.Pitch > 12 {
		return false
	}
	if p.Speed < 0.5 || p.Speed > 2.0 {
		return false
	}
	if p.Echo < 0 || p.Echo > 100 {
		return false
	}
	if p.Reverb < 0 || p.Reverb > 100 {
		return false
	}
	return true
}
