package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	DirMedia = "media"
	DirAudio = "audio"
)

var (
	// AllowedUploadTypes are sniffed MIME prefixes accepted by the generic upload.
	AllowedUploadTypes = []string{"audio/", "video/", "application/ogg", "image/"}
	// AllowedMaterialTypes are accepted for material files.
	AllowedMaterialTypes = []string{"text/"}
)

const RefreshTokenCookie = "refresh_token"
