package clocklog

// FileType enumerates the kinds of content a File row can describe.
type FileType string

const (
	FileTypeTrack    FileType = "track"
	FileTypeImage    FileType = "image"
	FileTypeMetadata FileType = "metadata"
	FileTypeCopy320  FileType = "copy320"
	FileTypeDir      FileType = "dir"
)

// User is the materialized user record: wallet identity plus the clock
// watermark that must equal the max clock of this user's clock log rows.
type User struct {
	UserUUID          string `gorm:"column:user_uuid;primaryKey;size:36"`
	WalletPublicKey   string `gorm:"column:wallet_public_key;uniqueIndex;size:64;not null"`
	Clock             int64  `gorm:"column:clock;not null;default:0"`
	LatestBlockNumber int64  `gorm:"column:latest_block_number;not null;default:0"`
	LastLogin         int64  `gorm:"column:last_login"`
	CreatedAt         int64  `gorm:"column:created_at;not null"`
}

func (User) TableName() string { return "users" }

// ClockLogRow is one append-only entry in a user's monotonic clock log.
type ClockLogRow struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserUUID     string `gorm:"column:user_uuid;not null;index:idx_clocklog_user_clock,priority:1,unique"`
	Clock        int64  `gorm:"column:clock;not null;index:idx_clocklog_user_clock,priority:2,unique"`
	SourceTable  string `gorm:"column:source_table;not null;size:32"`
	SourceRowID  string `gorm:"column:source_row_id;not null;size:64"`
	CreatedAt    int64  `gorm:"column:created_at;not null"`
}

func (ClockLogRow) TableName() string { return "clock_log_rows" }

// File is a content descriptor: when Skipped is false, the bytes at
// StoragePath exist and hash to Multihash; when true, it is a placeholder
// awaiting retry by the skipped-CID retry loop.
type File struct {
	FileUUID          string   `gorm:"column:file_uuid;primaryKey;size:36"`
	UserUUID          string   `gorm:"column:user_uuid;not null;index"`
	Multihash         string   `gorm:"column:multihash;not null;size:128"`
	StoragePath       string   `gorm:"column:storage_path;not null"`
	Type              FileType `gorm:"column:type;not null;size:16"`
	TrackBlockchainID *int64   `gorm:"column:track_blockchain_id"`
	DirMultihash      *string  `gorm:"column:dir_multihash;size:128"`
	FileName          *string  `gorm:"column:file_name"`
	Skipped           bool     `gorm:"column:skipped;not null;default:false"`
	Clock             int64    `gorm:"column:clock;not null"`
}

func (File) TableName() string { return "files" }

// Track is a track metadata record keyed by its on-chain blockchain ID.
type Track struct {
	TrackBlockchainID int64  `gorm:"column:track_blockchain_id;primaryKey"`
	UserUUID          string `gorm:"column:user_uuid;not null;index"`
	MetadataMultihash string `gorm:"column:metadata_multihash;not null;size:128"`
	CoverArtMultihash *string `gorm:"column:cover_art_multihash;size:128"`
	CreatedAt         int64  `gorm:"column:created_at;not null"`
	Clock             int64  `gorm:"column:clock;not null"`
}

func (Track) TableName() string { return "tracks" }

// AudiusUser is the per-user profile metadata snapshot.
type AudiusUser struct {
	UserUUID          string  `gorm:"column:user_uuid;primaryKey;size:36"`
	MetadataMultihash string  `gorm:"column:metadata_multihash;not null;size:128"`
	CoverPhoto        *string `gorm:"column:cover_photo;size:128"`
	ProfilePicture    *string `gorm:"column:profile_picture;size:128"`
	Clock             int64   `gorm:"column:clock;not null"`
}

func (AudiusUser) TableName() string { return "audius_users" }

// Mutation is one pending write destined for a clock log row plus its
// source entity, supplied by callers of Append.
type Mutation struct {
	SourceTable string
	SourceRowID string
	File        *File
	Track       *Track
	AudiusUser  *AudiusUser
}

// Entities groups the entity rows returned by Slice, mirroring the Export
// Payload's per-table grouping.
type Entities struct {
	Files       []File
	Tracks      []Track
	AudiusUsers []AudiusUser
}
