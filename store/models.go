package store

import (
	"time"

	"gorm.io/gorm/schema"
)

// Trap statuses stored in received.status.
const (
	StatusWaiting = "waiting"
	StatusDone    = "done"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// Received is a trap record.
type Received struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	DateReceived    time.Time `gorm:"column:date_received;index"`
	SourceIP        string    `gorm:"column:source_ip;size:45;index"`
	SourcePort      string    `gorm:"column:source_port;size:20"`
	DestinationIP   string    `gorm:"column:destination_ip;size:45"`
	DestinationPort string    `gorm:"column:destination_port;size:20"`
	TrapOID         string    `gorm:"column:trap_oid;size:256;index"`
	TrapName        string    `gorm:"column:trap_name;size:256"`
	TrapNameMIB     string    `gorm:"column:trap_name_mib;size:256"`
	SourceName      string    `gorm:"column:source_name;size:1024"`
	Status          string    `gorm:"column:status;size:20"`
	StatusDetail    string    `gorm:"column:status_detail;type:text"`
	ProcessTime     float64   `gorm:"column:process_time"`
}

// ReceivedData is one variable binding of a trap.
type ReceivedData struct {
	ID         int64  `gorm:"column:id;primaryKey"`
	TrapID     int64  `gorm:"column:trap_id;index"`
	OID        string `gorm:"column:oid;size:256"`
	OIDName    string `gorm:"column:oid_name;size:256"`
	OIDNameMIB string `gorm:"column:oid_name_mib;size:256"`
	Value      string `gorm:"column:value;type:text"`
}

// Rule maps a trap from a source to a service check.
type Rule struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	TrapOID       string `gorm:"column:trap_oid;size:256;index"`
	IP4           string `gorm:"column:ip4;size:20"`
	IP6           string `gorm:"column:ip6;size:50"`
	HostName      string `gorm:"column:host_name;size:256"`
	HostGroupName string `gorm:"column:host_group_name;size:256"`
	ServiceName   string `gorm:"column:service_name;size:256"`
	Expression    string `gorm:"column:rule;type:text"`
	ActionMatch   int    `gorm:"column:action_match"`
	ActionNoMatch int    `gorm:"column:action_nomatch"`
	NumMatch      int    `gorm:"column:num_match"`
	RevertOK      int    `gorm:"column:revert_ok"`
	Display       string `gorm:"column:display;type:text"`
	Comment       string `gorm:"column:comment;type:text"`
	Category      int    `gorm:"column:category"`
}

// TableName keeps the plural table name under the configured prefix.
func (Rule) TableName(namer schema.Namer) string {
	return namer.TableName("Rules")
}

// MibCache is one cached MIB object.
type MibCache struct {
	ID                int64  `gorm:"column:id;primaryKey"`
	OID               string `gorm:"column:oid;size:256;uniqueIndex"`
	Name              string `gorm:"column:name;size:512"`
	MIB               string `gorm:"column:mib;size:512"`
	Type              string `gorm:"column:type;size:20"`
	TextualConvention string `gorm:"column:textual_convention;size:256"`
	DisplayHint       string `gorm:"column:display_hint;size:256"`
	Syntax            string `gorm:"column:syntax;size:256"`
	TypeEnum          string `gorm:"column:type_enum;type:text"`
	Description       string `gorm:"column:description;type:text"`
}

// MibCacheTrapObject links a trap to an object it carries.
type MibCacheTrapObject struct {
	ID       int64 `gorm:"column:id;primaryKey"`
	TrapID   int64 `gorm:"column:trap_id;index"`
	ObjectID int64 `gorm:"column:object_id"`
}

// DBConfig is an operational setting.
type DBConfig struct {
	ID    int64  `gorm:"column:id;primaryKey"`
	Name  string `gorm:"column:name;size:128;uniqueIndex"`
	Value string `gorm:"column:value;size:1024"`
}
