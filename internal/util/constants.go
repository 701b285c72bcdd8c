package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 本地存储下对外开放的目录，题库源文件不对外暴露
const (
	ExportsPrefix = "exports"
	UploadsRoute  = "/uploads"
)
