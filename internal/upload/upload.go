package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedMedia 表示故事媒体既不是图片也不是视频。
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Saver 是上传协作方：接收原始附件字节，落盘后返回稳定引用。
// 引用随后作为 payload 进入投递路由，路由本身不接触文件内容。
type Saver struct {
	dir string
}

func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create dir: %w", err)
	}
	return &Saver{dir: dir}, nil
}

func (s *Saver) Dir() string { return s.dir }

type PhotoRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Ref  string `json:"ref"`
}

type DocumentRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Ref  string `json:"ref"`
}

type Refs struct {
	Photos    []PhotoRef    `json:"photos"`
	Documents []DocumentRef `json:"documents"`
}

// SaveAll 保存一批照片与文档，任何一个失败则整个请求失败。
func (s *Saver) SaveAll(photos, documents []*multipart.FileHeader) (*Refs, error) {
	refs := &Refs{Photos: []PhotoRef{}, Documents: []DocumentRef{}}
	for _, fh := range photos {
		ref, size, err := s.save(fh)
		if err != nil {
			return nil, err
		}
		refs.Photos = append(refs.Photos, PhotoRef{Name: fh.Filename, Size: size, Ref: ref})
	}
	for _, fh := range documents {
		ref, size, err := s.save(fh)
		if err != nil {
			return nil, err
		}
		refs.Documents = append(refs.Documents, DocumentRef{
			Name: fh.Filename,
			Type: contentType(fh),
			Size: size,
			Ref:  ref,
		})
	}
	return refs, nil
}

// SaveMedia 保存故事媒体并按类型归类为 image 或 video。
func (s *Saver) SaveMedia(fh *multipart.FileHeader) (ref, mediaType string, err error) {
	ct := contentType(fh)
	switch {
	case strings.HasPrefix(ct, "image/"):
		mediaType = "image"
	case strings.HasPrefix(ct, "video/"):
		mediaType = "video"
	default:
		return "", "", ErrUnsupportedMedia
	}
	ref, _, err = s.save(fh)
	return ref, mediaType, err
}

// save 以 uuid 前缀生成稳定文件名，避免用户文件名冲突或穿越目录。
func (s *Saver) save(fh *multipart.FileHeader) (string, int64, error) {
	src, err := fh.Open()
	if err != nil {
		return "", 0, fmt.Errorf("upload: open: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + filepath.Ext(filepath.Base(fh.Filename))
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", 0, fmt.Errorf("upload: create: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return "", 0, fmt.Errorf("upload: write: %w", err)
	}
	return name, n, nil
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return mime.TypeByExtension(filepath.Ext(fh.Filename))
}
