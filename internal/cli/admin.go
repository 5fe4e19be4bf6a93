package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

// restore signs the client in without binding a chat agent.
func (a *App) restore(ctx context.Context) error {
	_, err := a.accounts.Restore(ctx)
	return err
}

func (a *App) cmdAgents(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "create" {
		return a.cmdAgentCreate(ctx, args[1:])
	}
	fs := a.flags("agents")
	status := fs.String("status", "published", "状态过滤，空为全部")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.restore(ctx); err != nil {
		return err
	}
	agents, err := a.client.ListAgents(ctx, linkyun.ListAgentsParams{Status: *status})
	if err != nil {
		return err
	}
	for _, ag := range agents {
		a.printf("%s\t%s\t%s\t%s\n", ag.ID, ag.Code, ag.Name, ag.Status)
	}
	return nil
}

// cmdAgentCreate creates a lawyer's digital twin.
func (a *App) cmdAgentCreate(ctx context.Context, args []string) error {
	fs := a.flags("agents create")
	var req linkyun.CreateAgentRequest
	fs.StringVar(&req.Code, "code", "", "Agent 编码")
	fs.StringVar(&req.Name, "name", "", "名称")
	fs.StringVar(&req.Description, "desc", "", "简介")
	fs.StringVar(&req.Model, "model", "", "模型")
	fs.StringVar(&req.SystemPrompt, "prompt", "", "系统提示词")
	fs.StringVar(&req.Status, "status", "", "draft 或 published")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.Code == "" || req.Name == "" {
		return fmt.Errorf("%w: agents create -code C -name N", ErrUsage)
	}
	if err := a.restore(ctx); err != nil {
		return err
	}
	ag, err := a.client.CreateAgent(ctx, req)
	if err != nil {
		return err
	}
	a.printf("已创建 Agent %s（%s）\n", ag.Name, ag.ID)
	return nil
}

func (a *App) cmdKB(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: kb list|create|docs|add|rm|rmdoc", ErrUsage)
	}
	if err := a.restore(ctx); err != nil {
		return err
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		kbs, err := a.client.ListKnowledgeBases(ctx)
		if err != nil {
			return err
		}
		for _, kb := range kbs {
			a.printf("%s\t%s\t%d 个文档\n", kb.ID, kb.Name, kb.DocumentCount)
		}
		return nil

	case "create":
		fs := a.flags("kb create")
		var req linkyun.CreateKnowledgeBaseRequest
		fs.StringVar(&req.Name, "name", "", "名称")
		fs.StringVar(&req.Code, "code", "", "编码")
		fs.StringVar(&req.Description, "desc", "", "描述")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		kb, err := a.client.CreateKnowledgeBase(ctx, req)
		if err != nil {
			return err
		}
		a.printf("已创建知识库 %s（%s）\n", kb.Name, kb.ID)
		return nil

	case "docs":
		if len(rest) != 1 {
			return fmt.Errorf("%w: kb docs KB_ID", ErrUsage)
		}
		docs, err := a.client.ListDocuments(ctx, linkyun.ID(rest[0]))
		if err != nil {
			return err
		}
		for _, d := range docs {
			a.printf("%s\t%s\t%s\t%d 段\n", d.ID, d.Name, d.Status, d.ChunkCount)
		}
		return nil

	case "add":
		fs := a.flags("kb add")
		kbID := fs.String("kb", "", "知识库 ID")
		name := fs.String("name", "", "文档名，默认取文件名")
		file := fs.String("file", "", "文本文件路径")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *kbID == "" || *file == "" {
			return fmt.Errorf("%w: kb add -kb ID -file PATH", ErrUsage)
		}
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		if *name == "" {
			*name = filepath.Base(*file)
		}
		d, err := a.client.AddTextDocument(ctx, linkyun.ID(*kbID), *name, string(data))
		if err != nil {
			return err
		}
		a.printf("已添加文档 %s（%s）\n", d.Name, d.ID)
		return nil

	case "rm", "rmdoc":
		if len(rest) != 1 {
			return fmt.Errorf("%w: kb %s ID", ErrUsage, sub)
		}
		id := linkyun.ID(rest[0])
		var err error
		if sub == "rm" {
			err = a.client.DeleteKnowledgeBase(ctx, id)
		} else {
			err = a.client.DeleteDocument(ctx, id)
		}
		if err != nil {
			return err
		}
		a.printf("已删除 %s\n", id)
		return nil
	}
	return fmt.Errorf("%w: unknown kb command %q", ErrUsage, sub)
}
