package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore 是磁盘后端的音频Blob存储。
// 哼唱音频保存在 {root}/hums/{uid}/{filename}，由gin的静态路由对外提供。
type BlobStore struct {
	root string
}

// NewBlobStore 创建Blob存储并确保根目录存在。
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "hums"), 0o755); err != nil {
		return nil, fmt.Errorf("无法创建Blob存储目录: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Root 返回存储根目录，用于挂载静态路由。
func (s *BlobStore) Root() string {
	return s.root
}

// Save 将音频数据写入 hums/{userID}/{filename}，并返回对外可访问的URL路径。
// 写入采用临时文件加重命名，避免静态路由读到半个文件。
func (s *BlobStore) Save(userID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.root, "hums", userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("无法创建用户Blob目录: %w", err)
	}

	dst := filepath.Join(dir, filename)
	tmp, err := os.CreateTemp(dir, filename+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("无法创建临时文件: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("无法写入音频数据: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("无法关闭临时文件: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("无法落盘音频文件: %w", err)
	}

	return fmt.Sprintf("/static/hums/%s/%s", userID, filename), nil
}
