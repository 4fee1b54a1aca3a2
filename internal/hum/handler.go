package hum

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hummify/hummify-backend/internal/user"
)

// respondError 将仓库层错误映射为HTTP响应
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotAudio), errors.Is(err, ErrEmptyTitle),
		errors.Is(err, ErrEmptyComment), errors.Is(err, ErrInvalidRemixParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrHumNotFound), errors.Is(err, user.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrMutationInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务暂时不可用，请稍后重试"})
	}
}

// readUploadedAudio 从multipart表单中取出音频文件
func readUploadedAudio(c *gin.Context) (data []byte, contentType, filename string, err error) {
	fileHeader, err := c.FormFile("audio_file")
	if err != nil {
		return nil, "", "", err
	}
	f, err := fileHeader.Open()
	if err != nil {
		return nil, "", "", err
	}
	defer f.Close()
	data, err = io.ReadAll(f)
	if err != nil {
		return nil, "", "", err
	}
	return data, fileHeader.Header.Get("Content-Type"), fileHeader.Filename, nil
}

// HandleUpload 处理 POST /api/hums
// multipart字段: audio_file, title, description(可选)
func HandleUpload(c *gin.Context) {
	author := user.CurrentUser(c)

	data, contentType, filename, err := readUploadedAudio(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少音频文件: " + err.Error()})
		return
	}

	h, err := Upload(author, data, contentType, filename, c.PostForm("title"), c.PostForm("description"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"hum": FeedEntry{Hum: *h}})
}

// HandleToggleLike 处理 POST /api/hums/:id/like
// 返回切换后的权威状态，客户端据此对齐本地的乐观更新。
func HandleToggleLike(c *gin.Context) {
	requester := user.CurrentUser(c)

	state, err := ToggleLike(requester.UUID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// CommentRequestBody 定义了评论请求体的JSON结构
type CommentRequestBody struct {
	Text string `json:"text" binding:"required"`
}

// HandleAddComment 处理 POST /api/hums/:id/comments
func HandleAddComment(c *gin.Context) {
	author := user.CurrentUser(c)

	var body CommentRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	comment, err := AddComment(author, c.Param("id"), body.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// HandleGetProfile 处理 GET /api/hums/profile/:id
// 自己和他人的资料页走同一条路径；点赞标注基于请求者视角。
func HandleGetProfile(c *gin.Context) {
	requesterID := ""
	if requester := user.CurrentUser(c); requester != nil {
		requesterID = requester.UUID
	}

	profile, err := GetProfile(c.Param("id"), requesterID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"uid":         profile.User.UUID,
			"username":    profile.User.ResolvedName(),
			"displayName": profile.User.DisplayName,
			"bio":         profile.User.Bio,
			"createdAt":   profile.User.CreatedAt,
		},
		"stats": profile.Stats,
		"hums":  profile.Hums,
	})
}

// RemixRequestBody 定义了混音请求体的JSON结构
type RemixRequestBody struct {
	Pitch   int     `json:"pitch"`
	Speed   float64 `json:"speed"`
	Echo    int     `json:"echo"`
	Reverb  int     `json:"reverb"`
	Reverse bool    `json:"reverse"`
}

// HandleRemix 处理 POST /api/hums/:id/remix
// 在文档库中合成混音文档；实际的音频处理走识别服务的代理端点。
func HandleRemix(c *gin.Context) {
	author := user.CurrentUser(c)

	// speed缺省为1.0，与multipart端点的缺省值一致；JSON未提供的字段不覆盖
	body := RemixRequestBody{Speed: 1.0}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	remix, err := Remix(author, c.Param("id"), RemixParams{
		Pitch:   body.Pitch,
		Speed:   body.Speed,
		Echo:    body.Echo,
		Reverb:  body.Reverb,
		Reverse: body.Reverse,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"hum": FeedEntry{Hum: *remix}})
}

// ParseLimit 解析limit查询参数，非法值回落到默认条数
func ParseLimit(c *gin.Context) int {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(DefaultFeedLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return DefaultFeedLimit
	}
	return limit
}
