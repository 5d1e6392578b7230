package main

import (
	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/session"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
	"github.com/haasonsaas/nexus/internal/tools/websearch"
)

// toolsBuilder constructs a tool registry for each newly bound session,
// gating registration through a policy.Resolver so a session only gets the
// tools its configured profile allows.
type toolsBuilder struct {
	cfg       config.Config
	resolver  *policy.Resolver
	policy    *policy.Policy
	websearch *websearch.Config
}

func newToolsBuilder(cfg config.Config, searchCfg *websearch.Config) *toolsBuilder {
	profile := policy.Profile(cfg.Tools.Profile)
	if profile == "" {
		profile = policy.ProfileFull
	}
	toolsPolicy := policy.NewPolicy(profile).WithAllow(cfg.Tools.Allow...).WithDeny(cfg.Tools.Deny...)
	return &toolsBuilder{
		cfg:       cfg,
		resolver:  policy.NewResolver(),
		policy:    toolsPolicy,
		websearch: searchCfg,
	}
}

// build is the transport.RegistryFactory entry point.
func (b *toolsBuilder) build(sess *session.Session) *agent.ToolRegistry {
	registry := agent.NewToolRegistry()
	workspace := sess.Store.FilesDir()

	b.registerIfAllowed(registry, files.NewReadTool(files.Config{
		Workspace:    workspace,
		MaxReadBytes: 200000,
	}))
	b.registerIfAllowed(registry, files.NewWriteTool(files.Config{Workspace: workspace}).WithProtection(sess.Store))
	b.registerIfAllowed(registry, files.NewEditTool(files.Config{Workspace: workspace}))
	b.registerIfAllowed(registry, files.NewApplyPatchTool(files.Config{Workspace: workspace}))
	b.registerIfAllowed(registry, files.NewCreatePDFTool(files.Config{Workspace: workspace}))

	execManager := exec.NewManager(workspace)
	b.registerIfAllowed(registry, exec.NewExecTool("exec", execManager))
	b.registerIfAllowed(registry, exec.NewProcessTool(execManager))

	b.registerIfAllowed(registry, sandbox.NewCommandTool(sess.Sandbox))

	if b.websearch != nil {
		b.registerIfAllowed(registry, websearch.NewWebSearchTool(b.websearch))
	}
	b.registerIfAllowed(registry, websearch.NewWebFetchTool(&websearch.FetchConfig{MaxChars: 10000}))

	return registry
}

func (b *toolsBuilder) registerIfAllowed(registry *agent.ToolRegistry, tool agent.Tool) {
	if !b.resolver.IsAllowed(b.policy, tool.Name()) {
		return
	}
	registry.Register(tool)
}
