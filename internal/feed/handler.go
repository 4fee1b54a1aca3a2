package feed

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/matcher"
	"github.com/hummify/hummify-backend/internal/user"
)

// respondBackendError 把识别服务的错误映射为HTTP响应。
// 401会触发客户端把会话重定向到登录页。
func respondBackendError(c *gin.Context, err error) {
	if errors.Is(err, matcher.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	var backendErr *matcher.BackendError
	if errors.As(err, &backendErr) {
		status := http.StatusBadGateway
		if backendErr.Status >= 400 && backendErr.Status < 500 {
			status = backendErr.Status
		}
		c.JSON(status, gin.H{"error": backendErr.Detail})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "服务暂时不可用，请稍后重试"})
}

// HandleFeed 处理 GET /api/hums/feed?enhanced=&limit=
// 匿名可读；enhanced缺省开启，与前端的勾选框默认值一致。
func HandleFeed(c *gin.Context) {
	requesterID := ""
	if requester := user.CurrentUser(c); requester != nil {
		requesterID = requester.UUID
	}
	enhanced := c.DefaultQuery("enhanced", "true") == "true"

	result, err := Load(c.Request.Context(), requesterID, user.BearerToken(c), enhanced, hum.ParseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法加载Feed，请稍后重试"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hums":   result.Hums,
		"source": result.Source,
	})
}

// HandleUploadAndMatch 处理 POST /api/hums/upload-and-match
// multipart字段: audio_file, title。
// 顺序与原始流程一致：先本地校验，再请求识别服务，成功后才落文档。
func HandleUploadAndMatch(c *gin.Context) {
	author := user.CurrentUser(c)

	fileHeader, err := c.FormFile("audio_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少音频文件: " + err.Error()})
		return
	}
	title := c.PostForm("title")

	// 1. 本地校验必须发生在任何网络调用之前
	if !hum.IsAudioUpload(fileHeader.Header.Get("Content-Type"), fileHeader.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": hum.ErrNotAudio.Error()})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取音频文件"})
		return
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取音频文件"})
		return
	}

	// 2. 请求识别服务；候选顺序由服务端保证
	matches, err := backendClient.UploadAndMatch(c.Request.Context(), user.BearerToken(c),
		fileHeader.Filename, audio, title)
	if err != nil {
		respondBackendError(c, err)
		return
	}

	// 3. 落盘Blob并创建哼唱文档
	h, err := hum.Upload(author, audio, fileHeader.Header.Get("Content-Type"), fileHeader.Filename,
		title, "")
	if err != nil {
		respondBackendError(c, err)
		return
	}

	// 4. 记录最佳识别结果（有的话）
	status := "no_match"
	if len(matches) > 0 {
		if err := hum.RecordMatch(h.ID, matches[0].ToMatchedSong()); err != nil {
			fmt.Printf("警告: 无法记录识别结果: %v\n", err)
		} else {
			status = "completed"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"hum_id":            h.ID,
		"title":             title,
		"matches":           matches,
		"processing_status": status,
	})
}

// HandleRemixProxy 处理 POST /api/hums/remix
// multipart字段: audio_file 加扁平化的混音参数；透传识别服务的处理结果。
func HandleRemixProxy(c *gin.Context) {
	fileHeader, err := c.FormFile("audio_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少音频文件: " + err.Error()})
		return
	}
	if !hum.IsAudioUpload(fileHeader.Header.Get("Content-Type"), fileHeader.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": hum.ErrNotAudio.Error()})
		return
	}

	params, err := remixParamsFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取音频文件"})
		return
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取音频文件"})
		return
	}

	remixedURL, err := backendClient.Remix(c.Request.Context(), user.BearerToken(c),
		fileHeader.Filename, audio, *params)
	if err != nil {
		respondBackendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Remix successful!",
		"remixed_url": remixedURL,
	})
}

// remixParamsFromForm 从multipart表单解析扁平化的混音参数。
// 缺省值与原始端点一致：pitch=0, speed=1.0, echo=0, reverb=0, reverse=false。
func remixParamsFromForm(c *gin.Context) (*hum.RemixParams, error) {
	params := hum.RemixParams{Speed: 1.0}

	if v := c.PostForm("pitch"); v != "" {
		pitch, err := strconv.Atoi(v)
		if err != nil {
			return nil, hum.ErrInvalidRemixParams
		}
		params.Pitch = pitch
	}
	if v := c.PostForm("speed"); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, hum.ErrInvalidRemixParams
		}
		params.Speed = speed
	}
	if v := c.PostForm("echo"); v != "" {
		echo, err := strconv.Atoi(v)
		if err != nil {
			return nil, hum.ErrInvalidRemixParams
		}
		params.Echo = echo
	}
	if v := c.PostForm("reverb"); v != "" {
		reverb, err := strconv.Atoi(v)
		if err != nil {
			return nil, hum.ErrInvalidRemixParams
		}
		params.Reverb = reverb
	}
	params.Reverse = c.PostForm("reverse") == "true"

	if !params.Valid() {
		return nil, hum.ErrInvalidRemixParams
	}
	return &params, nil
}

// HandleSyncProfile 处理 POST /api/hums/sync-profile
// 尽力而为：失败只翻转能力标记，不作为阻塞错误返回。
func HandleSyncProfile(c *gin.Context) {
	err := backendClient.SyncProfile(c.Request.Context(), user.BearerToken(c))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"synced": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": true})
}
