package domain

import (
	"cmp"
	"maps"
	"slices"
)

// ManagedFieldsRow 记录一个模块下某个管理者持有的全部字段。
type ManagedFieldsRow struct {
	ModuleID string
	Manager  FieldMgrName
	fields   map[Field]struct{}
	updated  bool
}

func NewManagedFieldsRow(moduleID string, manager FieldMgrName, fields []Field) *ManagedFieldsRow {
	row := &ManagedFieldsRow{ModuleID: moduleID, Manager: manager, fields: make(map[Field]struct{}, len(fields))}
	for _, f := range fields {
		row.fields[f] = struct{}{}
	}
	return row
}

// Fields 按字典序返回字段列表，保证持久化结果稳定。
func (r *ManagedFieldsRow) Fields() []Field {
	return slices.Sorted(maps.Keys(r.fields))
}

func (r *ManagedFieldsRow) Has(f Field) bool {
	_, ok := r.fields[f]
	return ok
}

func (r *ManagedFieldsRow) Updated() bool { return r.updated }

func (r *ManagedFieldsRow) add(f Field) {
	if _, ok := r.fields[f]; ok {
		return
	}
	r.fields[f] = struct{}{}
	r.updated = true
}

func (r *ManagedFieldsRow) remove(f Field) {
	if _, ok := r.fields[f]; !ok {
		return
	}
	delete(r.fields, f)
	r.updated = true
}

func (r *ManagedFieldsRow) clone() *ManagedFieldsRow {
	return &ManagedFieldsRow{
		ModuleID: r.ModuleID,
		Manager:  r.Manager,
		fields:   maps.Clone(r.fields),
		updated:  r.updated,
	}
}

// ManagedFieldsRowGroup 是一个模块全部管理者行的内存快照。
// 同一字段任何时刻至多出现在一行中。
type ManagedFieldsRowGroup struct {
	moduleID string
	rows     []*ManagedFieldsRow
}

// NewManagedFieldsRowGroup 按管理者合并行；若同一字段出现在多行，保留先出现的那一行。
func NewManagedFieldsRowGroup(moduleID string, rows []*ManagedFieldsRow) *ManagedFieldsRowGroup {
	g := &ManagedFieldsRowGroup{moduleID: moduleID}
	seen := make(map[Field]struct{})
	for _, r := range rows {
		target := g.row(r.Manager)
		if target == nil {
			target = &ManagedFieldsRow{ModuleID: moduleID, Manager: r.Manager, fields: map[Field]struct{}{}}
			g.rows = append(g.rows, target)
		}
		for _, f := range r.Fields() {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			target.fields[f] = struct{}{}
		}
	}
	return g
}

func (g *ManagedFieldsRowGroup) ModuleID() string { return g.moduleID }

func (g *ManagedFieldsRowGroup) Rows() []*ManagedFieldsRow { return g.rows }

func (g *ManagedFieldsRowGroup) row(manager FieldMgrName) *ManagedFieldsRow {
	for _, r := range g.rows {
		if r.Manager == manager {
			return r
		}
	}
	return nil
}

// GetManager 返回字段当前持有者；未被管理时 ok 为 false。
func (g *ManagedFieldsRowGroup) GetManager(f Field) (FieldMgrName, bool) {
	for _, r := range g.rows {
		if r.Has(f) {
			return r.Manager, true
		}
	}
	return "", false
}

// SetManager 把字段交给 manager，原持有者的记录被移除。
func (g *ManagedFieldsRowGroup) SetManager(manager FieldMgrName, f Field) {
	for _, r := range g.rows {
		if r.Manager != manager {
			r.remove(f)
		}
	}
	target := g.row(manager)
	if target == nil {
		target = &ManagedFieldsRow{ModuleID: g.moduleID, Manager: manager, fields: map[Field]struct{}{}}
		g.rows = append(g.rows, target)
	}
	target.add(f)
}

// ResetManager 让字段回到未管理状态。
func (g *ManagedFieldsRowGroup) ResetManager(f Field) {
	for _, r := range g.rows {
		r.remove(f)
	}
}

// FieldsOf 返回某个管理者持有的字段。
func (g *ManagedFieldsRowGroup) FieldsOf(manager FieldMgrName) []Field {
	if r := g.row(manager); r != nil {
		return r.Fields()
	}
	return nil
}

// Ownerships 按字段排序返回全部持有关系。
func (g *ManagedFieldsRowGroup) Ownerships() []FieldOwnership {
	var out []FieldOwnership
	for _, r := range g.rows {
		for _, f := range r.Fields() {
			out = append(out, FieldOwnership{Field: f, Manager: r.Manager})
		}
	}
	slices.SortFunc(out, func(a, b FieldOwnership) int { return cmp.Compare(a.Field, b.Field) })
	return out
}

// UpdatedRows 返回自加载或上次 CleanUpdated 以来发生变化的行。
func (g *ManagedFieldsRowGroup) UpdatedRows() []*ManagedFieldsRow {
	var out []*ManagedFieldsRow
	for _, r := range g.rows {
		if r.updated {
			out = append(out, r)
		}
	}
	return out
}

func (g *ManagedFieldsRowGroup) CleanUpdated() {
	for _, r := range g.rows {
		r.updated = false
	}
}

// Clone 深拷贝，批量修改在副本上进行，失败时原快照不受影响。
func (g *ManagedFieldsRowGroup) Clone() *ManagedFieldsRowGroup {
	c := &ManagedFieldsRowGroup{moduleID: g.moduleID, rows: make([]*ManagedFieldsRow, 0, len(g.rows))}
	for _, r := range g.rows {
		c.rows = append(c.rows, r.clone())
	}
	return c
}
