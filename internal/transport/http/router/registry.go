package router

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// Module 由各 handler 实现
type Module interface{ Mount(*gin.RouterGroup) }

// 可选：实现该接口可控制挂载顺序（数值越小越先挂）
// 不实现则默认 100
type prioritizer interface{ Priority() int }

type Registry struct {
	mods []Module
}

func (r *Registry) Register(mods ...Module) {
	r.mods = append(r.mods, mods...)
}

// MountAll 按优先级挂载，优先级相同保持注册顺序
func (r *Registry) MountAll(g *gin.RouterGroup) {
	mods := append([]Module(nil), r.mods...)
	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.Mount(g)
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}
