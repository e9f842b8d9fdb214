// Package inventory answers questions about the monitored hosts: host-group
// membership and service states from the Icinga2 IDO database, and source
// names from reverse DNS.
package inventory

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/store"
)

// icinga_objects.objecttype_id of host groups.
const objectTypeHostGroup = 3

// Member is a host belonging to a host group.
type Member struct {
	Name string
	IP4  string
	IP6  string
}

// Matches reports whether ip is one of the member addresses.
func (m Member) Matches(ip string) bool {
	return ip != "" && (m.IP4 == ip || m.IP6 == ip)
}

// ServiceStatus is a service that is not in the OK state.
type ServiceStatus struct {
	ObjectID  int64
	Host      string
	Service   string
	State     int
	LastCheck time.Time
}

// Groups resolves host-group membership.
type Groups interface {
	HostGroupMembers(ctx context.Context, group string) ([]Member, error)
}

// Services lists services needing attention.
type Services interface {
	NonOKServices(ctx context.Context) ([]ServiceStatus, error)
}

// IDO reads the Icinga2 IDO database.
type IDO struct {
	db  *gorm.DB
	log logging.Logger
}

// OpenIDO connects to the IDO database. dbType is one of the store types.
func OpenIDO(dbType, dsn string, log logging.Logger) (*IDO, error) {
	dialector, err := store.Dialector(dbType, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s IDO database: %w", dbType, err)
	}
	return NewIDO(db, log), nil
}

// NewIDO wraps an open IDO connection.
func NewIDO(db *gorm.DB, log logging.Logger) *IDO {
	if log == nil {
		log = logging.NewComponentLogger("inventory", "ido")
	}
	return &IDO{db: db, log: log}
}

// HostGroupMembers returns the hosts of a host group with their addresses.
func (i *IDO) HostGroupMembers(ctx context.Context, group string) ([]Member, error) {
	var members []Member
	err := i.db.WithContext(ctx).Table("icinga_objects AS o").
		Select("b.name1 AS name, a.address AS ip4, a.address6 AS ip6").
		Joins("JOIN icinga_hostgroups AS h ON o.object_id = h.hostgroup_object_id").
		Joins("JOIN icinga_hostgroup_members AS m ON h.hostgroup_id = m.hostgroup_id").
		Joins("JOIN icinga_hosts AS a ON a.host_object_id = m.host_object_id").
		Joins("JOIN icinga_objects AS b ON b.object_id = a.host_object_id").
		Where("o.name1 = ? AND o.objecttype_id = ?", group, objectTypeHostGroup).
		Scan(&members).Error
	if err != nil {
		return nil, fmt.Errorf("loading members of host group %s: %w", group, err)
	}
	i.log.Debug("host group members", "group", group, "count", len(members))
	return members, nil
}

// NonOKServices returns every service whose current state is not OK.
func (i *IDO) NonOKServices(ctx context.Context) ([]ServiceStatus, error) {
	var services []ServiceStatus
	err := i.db.WithContext(ctx).Table("icinga_servicestatus AS s").
		Select("s.service_object_id AS object_id, v.name1 AS host, v.name2 AS service, " +
			"s.current_state AS state, s.last_check AS last_check").
		Joins("JOIN icinga_objects AS v ON s.service_object_id = v.object_id").
		Where("s.current_state != 0").
		Order("s.service_object_id").
		Scan(&services).Error
	if err != nil {
		return nil, fmt.Errorf("loading non-OK services: %w", err)
	}
	return services, nil
}

// Close closes the connection pool.
func (i *IDO) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
