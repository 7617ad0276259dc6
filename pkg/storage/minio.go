// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
// 成功预处理的上传文件会归档一份原始字节，便于追溯。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。未启用时为 nil。
var MinioClient *minio.Client

var bucketName string

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	if !cfg.Enabled {
		log.Info("MinIO 归档未启用，跳过初始化")
		return
	}

	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName = cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ArchiveUpload 将一份上传文件的原始字节归档到对象存储。
// 归档是尽力而为的：客户端未启用或写入失败只记录日志。
func ArchiveUpload(ctx context.Context, userID uint, fileName string, data []byte) {
	if MinioClient == nil {
		return
	}

	objectName := fmt.Sprintf("uploads/%d/%s/%s", userID, time.Now().Format("20060102"), fileName)
	_, err := MinioClient.PutObject(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		log.Errorf("归档上传文件失败: %s, error: %v", objectName, err)
		return
	}
	log.Infof("上传文件已归档: %s", objectName)
}
