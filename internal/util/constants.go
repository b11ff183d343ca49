package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeJSON = "application/json"
)

// ContextUserKey gin 上下文中保存 JWT claims 的键
const ContextUserKey = "user"
