package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/pluginhost/pluginhostd/internal/core"
	"github.com/pluginhost/pluginhostd/internal/errors"
)

// Admin serves the introspection and control surface over the plugin
// lifecycle subsystem: what's installed, what's backed up, host resource
// pressure, and a manual reload trigger.
type Admin struct {
	module *core.Module
}

func NewAdmin(module *core.Module) *Admin {
	return &Admin{module: module}
}

// ListPlugins reports every currently installed plugin.
func (a *Admin) ListPlugins(c *gin.Context) {
	entries := a.module.Entries()

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		item := gin.H{
			"path":     string(e.Path),
			"identity": string(core.IdentityOf(e.Path)),
			"name":     e.Plugin.Name(),
			"category": e.Plugin.Category(),
		}
		if ep, ok := e.Plugin.(core.EndpointPlugin); ok {
			item["method"] = ep.Method()
			item["endpoint"] = ep.Path()
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"plugins": out, "count": len(out)})
}

// ListBackups reports every backup file the Store is currently tracking.
func (a *Admin) ListBackups(c *gin.Context) {
	backups := a.module.Backups()

	out := make([]gin.H, 0, len(backups))
	for _, b := range backups {
		out = append(out, gin.H{
			"identity": string(b.Identity),
			"path":     string(b.Path),
			"inserted": b.Inserted,
		})
	}

	c.JSON(http.StatusOK, gin.H{"backups": out, "count": len(out)})
}

// Health reports host resource pressure alongside a basic plugin count, so
// an operator can correlate a CPU/memory spike with a hot-reload storm.
func (a *Admin) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status := gin.H{"status": "ok", "time": time.Now()}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	status["installed_plugins"] = len(a.module.Entries())

	c.JSON(http.StatusOK, status)
}

// TriggerReload forces an immediate reload attempt for one artifact on
// disk, bypassing the write-debounce window. The request body is
// {"path": "<artifact file name or absolute path, relative to plugins dir>"}.
func (a *Admin) TriggerReload(c *gin.Context) {
	var body struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errors.HandleValidationError(c, "path is required", "path")
		return
	}

	path := core.ArtifactPath(body.Path)
	if !filepath.IsAbs(body.Path) {
		path = core.ArtifactPath(filepath.Join(a.module.PluginDir(), body.Path))
	}

	if err := a.module.TriggerReload(path); err != nil {
		errors.HandlePluginError(c, string(core.IdentityOf(path)), "reload", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"path": string(path), "status": "reload triggered"})
}
