package entity

import (
	"fmt"
	"strings"
)

// 机型族，封闭集合
// 新增机型族需要补工厂函数，编译期即可发现遗漏
const (
	FamilyITrak    = "itrak"
	FamilyDipstick = "dipstick"
	FamilySwab     = "swab"
)

// Machine 机台，只读配置数据，不落库
type Machine struct {
	ShortName string `json:"short_name"`
	Name      string `json:"name"`
	Family    string `json:"family"`
}

// NewMachine 按机型族构造机台，展示名由short_name推导
func NewMachine(family, shortName string) (Machine, error) {
	switch family {
	case FamilyITrak:
		return Machine{
			ShortName: shortName,
			Name:      strings.Replace(shortName, "line", "Line ", 1),
			Family:    family,
		}, nil
	case FamilyDipstick:
		return Machine{
			ShortName: shortName,
			Name:      strings.Replace(shortName, "dipstick", "Dipstick ", 1),
			Family:    family,
		}, nil
	case FamilySwab:
		return Machine{
			ShortName: shortName,
			Name:      strings.Replace(shortName, "swab", "Swab Poucher ", 1),
			Family:    family,
		}, nil
	default:
		return Machine{}, fmt.Errorf("unknown machine family: %s", family)
	}
}

// MachineCatalog 机台目录，启动时由配置构建一次
type MachineCatalog struct {
	byFamily map[string][]Machine
	byName   map[string]Machine
	defaults map[string]bool // 新建周的机台启用默认值
}

// NewMachineCatalog 构建机台目录
// families: 机型族 → short_name列表；defaults: short_name → 默认启用
func NewMachineCatalog(families map[string][]string, defaults map[string]bool) (*MachineCatalog, error) {
	c := &MachineCatalog{
		byFamily: make(map[string][]Machine),
		byName:   make(map[string]Machine),
		defaults: defaults,
	}
	for family, shortNames := range families {
		// 配置了但暂无机台的族也要登记，与未知族区分开
		if _, ok := c.byFamily[family]; !ok {
			c.byFamily[family] = []Machine{}
		}
		for _, sn := range shortNames {
			m, err := NewMachine(family, sn)
			if err != nil {
				return nil, err
			}
			c.byFamily[family] = append(c.byFamily[family], m)
			c.byName[sn] = m
		}
	}
	return c, nil
}

// Family 某机型族的全部机台，未配置的族返回空
func (c *MachineCatalog) Family(family string) []Machine {
	return c.byFamily[family]
}

// HasFamily 机型族是否已配置，即使族内暂无机台
func (c *MachineCatalog) HasFamily(family string) bool {
	_, ok := c.byFamily[family]
	return ok
}

// Get 按short_name查机台
func (c *MachineCatalog) Get(shortName string) (Machine, bool) {
	m, ok := c.byName[shortName]
	return m, ok
}

// Families 已配置的机型族列表
func (c *MachineCatalog) Families() []string {
	fams := make([]string, 0, len(c.byFamily))
	for f := range c.byFamily {
		fams = append(fams, f)
	}
	return fams
}

// DefaultActive 机台的默认启用标记
func (c *MachineCatalog) DefaultActive(shortName string) bool {
	return c.defaults[shortName]
}
