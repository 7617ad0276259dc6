// Package pipeline 定义了上传文件预处理的核心流程：
// 将一个上传文件转换为可并入提示词的文本、表格摘要或图片负载。
package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
	"cookie-ai-go/pkg/log"
	"cookie-ai-go/pkg/tika"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// 产物类型。
const (
	KindImage = "image"
	KindText  = "text"
	KindTable = "table"
)

// File 是一个待预处理的上传文件。
type File struct {
	Name string
	Data []byte
}

// Artifact 是预处理产物。Kind 决定哪个字段有效。
type Artifact struct {
	Kind    string
	Base64  string              // KindImage: 压缩后 JPEG 的 base64
	Content string              // KindText: 提取或解码出的文本
	Table   *model.TableSummary // KindTable: 结构化表格摘要
}

// 识别为源码/标记文本、按 UTF-8 原样读入的扩展名。
var codeExtensions = map[string]bool{
	"py": true, "c": true, "cpp": true, "h": true, "hpp": true,
	"m": true, "swift": true, "java": true, "js": true, "ts": true,
	"html": true, "htm": true, "css": true, "scss": true, "less": true,
	"jsx": true, "tsx": true, "vue": true, "php": true,
}

// Ingestor 封装了文件预处理的所有依赖和逻辑。
type Ingestor struct {
	tikaClient *tika.Client
	uploadCfg  config.UploadConfig
}

// NewIngestor 创建一个新的 Ingestor 实例。
func NewIngestor(tikaClient *tika.Client, uploadCfg config.UploadConfig) *Ingestor {
	return &Ingestor{
		tikaClient: tikaClient,
		uploadCfg:  uploadCfg,
	}
}

// maxFileSize 返回大小上限（字节）。
func (p *Ingestor) maxFileSize() int {
	mb := p.uploadCfg.MaxFileSizeMB
	if mb <= 0 {
		mb = 50
	}
	return mb * 1024 * 1024
}

// Ingest 是预处理的主函数。
// 超过大小上限或提取失败返回错误；无法识别的扩展名返回 (nil, nil)，
// 调用方按"未产生内容"处理。任何情况下都不产生部分结果。
func (p *Ingestor) Ingest(ctx context.Context, file File) (*Artifact, error) {
	// 1. 大小检查先于一切格式相关处理
	if len(file.Data) > p.maxFileSize() {
		return nil, fmt.Errorf("文件大小超过限制（%dMB），请上传更小的文件", p.uploadCfg.MaxFileSizeMB)
	}

	ext := extensionOf(file.Name)
	log.Infof("[Ingestor] 开始预处理文件, FileName: %s, Ext: %s, Size: %d字节", file.Name, ext, len(file.Data))

	switch {
	case ext == "png" || ext == "jpg" || ext == "jpeg":
		compressed, err := CompressImage(file.Data, p.uploadCfg.ImageTargetMB)
		if err != nil {
			return nil, fmt.Errorf("处理图片时出错: %w", err)
		}
		return &Artifact{Kind: KindImage, Base64: base64.StdEncoding.EncodeToString(compressed)}, nil

	case ext == "pdf":
		text, err := extractPDFText(file.Data)
		if err != nil {
			return nil, fmt.Errorf("处理PDF文档时出错: %w", err)
		}
		return &Artifact{Kind: KindText, Content: text}, nil

	case ext == "docx":
		text, err := extractDocxText(file.Data)
		if err != nil {
			return nil, fmt.Errorf("处理Word文档时出错: %w", err)
		}
		return &Artifact{Kind: KindText, Content: text}, nil

	case ext == "doc":
		// 旧版二进制 .doc 无法在进程内解析，交由 Tika 服务器提取
		text, err := p.tikaClient.ExtractText(bytes.NewReader(file.Data), file.Name)
		if err != nil {
			return nil, fmt.Errorf("处理Word文档时出错: %w", err)
		}
		return &Artifact{Kind: KindText, Content: text}, nil

	case ext == "xlsx":
		table, err := summarizeExcel(file.Data)
		if err != nil {
			return nil, fmt.Errorf("处理Excel表格时出错: %w", err)
		}
		return &Artifact{Kind: KindTable, Table: table}, nil

	case ext == "xls":
		table, err := p.summarizeLegacyExcel(file)
		if err != nil {
			return nil, fmt.Errorf("处理Excel表格时出错: %w", err)
		}
		return &Artifact{Kind: KindTable, Table: table}, nil

	case ext == "csv":
		table, err := summarizeCSV(file.Data)
		if err != nil {
			return nil, fmt.Errorf("处理CSV文件时出错: %w", err)
		}
		return &Artifact{Kind: KindTable, Table: table}, nil

	case codeExtensions[ext]:
		// 源码/标记文件按 UTF-8 原样读入，不做任何提取
		return &Artifact{Kind: KindText, Content: string(file.Data)}, nil

	default:
		log.Warnf("[Ingestor] 无法识别的文件扩展名, FileName: %s", file.Name)
		return nil, nil
	}
}

// extensionOf 返回小写的文件扩展名（不含点）。
func extensionOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(ext, ".")
}

// extractPDFText 逐页提取 PDF 文本并拼接。
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("提取第 %d 页文本失败: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractDocxText 逐段落提取 docx 文本并拼接。
func extractDocxText(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析docx失败: %w", err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch o := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(o.String())
			sb.WriteString("\n")
		case *docx.Table:
			sb.WriteString(o.String())
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
