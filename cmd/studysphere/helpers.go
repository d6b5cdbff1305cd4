package main

import (
	"github.com/spf13/cobra"
)

// bodyKeys 命令行标志名到请求字段名的映射，未列出的标志使用同名字段
var bodyKeys = map[string]string{
	"day":        "dayId",
	"task":       "taskId",
	"roadmap-id": "roadmapId",
}

// requestBody 由命令行标志构造的 JSON 请求体
type requestBody map[string]interface{}

func bodyKey(flag string) string {
	if key, ok := bodyKeys[flag]; ok {
		return key
	}
	return flag
}

// setChanged 只写入显式设置过的标志，其余字段交给服务端取默认值
func (b requestBody) setChanged(cmd *cobra.Command, flags ...string) error {
	for _, name := range flags {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if f.Value.Type() == "int" {
			v, err := cmd.Flags().GetInt(name)
			if err != nil {
				return err
			}
			b[bodyKey(name)] = v
			continue
		}
		b[bodyKey(name)] = f.Value.String()
	}
	return nil
}
