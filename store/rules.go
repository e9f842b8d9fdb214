package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// RulesByOID returns the rules of a trap OID.
func (s *Store) RulesByOID(ctx context.Context, oid string) ([]Rule, error) {
	var rules []Rule
	if err := s.db.WithContext(ctx).Where("trap_oid = ?", oid).Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("loading rules of %s: %w", oid, err)
	}
	return rules, nil
}

// RulesWithRevert returns the rules having an auto-revert delay.
func (s *Store) RulesWithRevert(ctx context.Context) ([]Rule, error) {
	var rules []Rule
	if err := s.db.WithContext(ctx).Where("revert_ok != 0").Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("loading revert rules: %w", err)
	}
	return rules, nil
}

// CreateRule stores a new rule.
func (s *Store) CreateRule(ctx context.Context, rule *Rule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

// IncrementRuleMatch adds one to the match counter of a rule.
func (s *Store) IncrementRuleMatch(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&Rule{}).Where("id = ?", id).
		UpdateColumn("num_match", gorm.Expr("num_match + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("updating match count of rule %d: %w", id, err)
	}
	return nil
}

// GetRule returns a rule.
func (s *Store) GetRule(ctx context.Context, id int64) (Rule, error) {
	var rule Rule
	err := s.db.WithContext(ctx).First(&rule, id).Error
	return rule, notFound(err)
}
