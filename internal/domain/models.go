// Package domain holds the persistence model from spec.md §3: Object,
// Attachment, Package and SyncStatus, plus the eligibility predicate in
// eligibility.go. These are GORM models, grounded on the teacher's
// internal/domain model style (plain structs, explicit column names via
// struct tags, no behavior beyond small helpers).
package domain

import "time"

// FreezeSource distinguishes an administrative freeze from one raised
// automatically by a failing stage job.
type FreezeSource string

const (
	FreezeSourceUser      FreezeSource = "USER"
	FreezeSourceAutomatic FreezeSource = "AUTOMATIC"
)

// Object is one CMS record selected for preservation.
type Object struct {
	ID                     int64        `gorm:"column:id;primaryKey" json:"id"`
	Title                  string       `gorm:"column:title" json:"title"`
	Preserved              bool         `gorm:"column:preserved;not null;default:false" json:"preserved"`
	Frozen                 bool         `gorm:"column:frozen;not null;default:false;index" json:"frozen"`
	FreezeReason           string       `gorm:"column:freeze_reason" json:"freeze_reason"`
	FreezeSource           *FreezeSource `gorm:"column:freeze_source" json:"freeze_source"`
	CreatedDate            *time.Time   `gorm:"column:created_date" json:"created_date"`
	ModifiedDate           *time.Time   `gorm:"column:modified_date" json:"modified_date"`
	MetadataHash           *string      `gorm:"column:metadata_hash" json:"metadata_hash"`
	AttachmentMetadataHash *string      `gorm:"column:attachment_metadata_hash" json:"attachment_metadata_hash"`
	LatestPackageID        *int64       `gorm:"column:latest_package_id" json:"latest_package_id"`

	LatestPackage *Package      `gorm:"foreignKey:LatestPackageID" json:"-"`
	Packages      []*Package    `gorm:"foreignKey:ObjectID" json:"-"`
	Attachments   []*Attachment `gorm:"many2many:object_attachment_association;joinForeignKey:ObjectID;joinReferences:AttachmentID" json:"-"`
}

func (Object) TableName() string { return "museum_objects" }

// HasAttachments reports whether the object's attachment_metadata_hash
// has been computed as non-empty, i.e. it has at least one attachment.
// An empty string is the "no attachments" sentinel; nil means
// "not yet computed" and must not be treated as "no attachments".
func (o *Object) HasAttachments() bool {
	return o.AttachmentMetadataHash != nil && *o.AttachmentMetadataHash != ""
}

// Attachment is one CMS multimedia record, shared across Objects.
type Attachment struct {
	ID           int64      `gorm:"column:id;primaryKey" json:"id"`
	Filename     string     `gorm:"column:filename" json:"filename"`
	CreatedDate  *time.Time `gorm:"column:created_date" json:"created_date"`
	ModifiedDate *time.Time `gorm:"column:modified_date" json:"modified_date"`
	MetadataHash *string    `gorm:"column:metadata_hash" json:"metadata_hash"`

	Objects  []*Object  `gorm:"many2many:object_attachment_association;joinForeignKey:AttachmentID;joinReferences:ObjectID" json:"-"`
	Packages []*Package `gorm:"many2many:package_attachment_association;joinForeignKey:AttachmentID;joinReferences:PackageID" json:"-"`
}

func (Attachment) TableName() string { return "museum_attachments" }

// Package is one packaging attempt ("SIP") of one Object.
type Package struct {
	ID          int64  `gorm:"column:id;primaryKey" json:"id"`
	ObjectID    int64  `gorm:"column:museum_object_id;not null;index" json:"object_id"`
	SIPFilename string `gorm:"column:sip_filename;uniqueIndex" json:"sip_filename"`
	SIPID       string `gorm:"column:sip_id" json:"sip_id"`

	Downloaded bool `gorm:"column:downloaded;not null;default:false" json:"downloaded"`
	Packaged   bool `gorm:"column:packaged;not null;default:false" json:"packaged"`
	Uploaded   bool `gorm:"column:uploaded;not null;default:false" json:"uploaded"`
	Rejected   bool `gorm:"column:rejected;not null;default:false" json:"rejected"`
	Preserved  bool `gorm:"column:preserved;not null;default:false" json:"preserved"`
	Cancelled  bool `gorm:"column:cancelled;not null;default:false" json:"cancelled"`

	ObjectModifiedDate     *time.Time `gorm:"column:object_modified_date" json:"object_modified_date"`
	CreatedDate            time.Time  `gorm:"column:created_date;not null;index" json:"created_date"`
	MetadataHash           *string    `gorm:"column:metadata_hash" json:"metadata_hash"`
	AttachmentMetadataHash *string    `gorm:"column:attachment_metadata_hash" json:"attachment_metadata_hash"`

	Attachments []*Attachment `gorm:"many2many:package_attachment_association;joinForeignKey:PackageID;joinReferences:AttachmentID" json:"-"`
}

func (Package) TableName() string { return "museum_packages" }

// IsTerminal reports whether the package has reached exactly one of the
// three mutually exclusive terminal states.
func (p *Package) IsTerminal() bool {
	return p.Preserved || p.Rejected || p.Cancelled
}

// SyncStatus is the resumable cursor for one named recurring sync job.
type SyncStatus struct {
	Name              string     `gorm:"column:name;primaryKey" json:"name"`
	StartSyncDate     *time.Time `gorm:"column:start_sync_date" json:"start_sync_date"`
	PrevStartSyncDate *time.Time `gorm:"column:prev_start_sync_date" json:"prev_start_sync_date"`
	Offset            int        `gorm:"column:offset;not null;default:0" json:"offset"`
}

func (SyncStatus) TableName() string { return "sync_statuses" }
