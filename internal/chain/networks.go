package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions 对应 configs/chains.yaml 的结构。
type NetworkDefinitions struct {
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition 描述一个 Sui 网络端点。
type NetworkDefinition struct {
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadNetworkDefinitions 解析网络定义文件。路径为空时返回空集合。
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkDefinitions{Networks: map[string]NetworkDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs NetworkDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	return defs, nil
}

// Resolve 返回指定网络的定义。
func (d NetworkDefinitions) Resolve(name string) (NetworkDefinition, error) {
	def, ok := d.Networks[name]
	if !ok {
		return NetworkDefinition{}, fmt.Errorf("未定义的网络: %s", name)
	}
	if strings.TrimSpace(def.RPCURL) == "" {
		return NetworkDefinition{}, fmt.Errorf("网络 %s 缺少 rpc_url", name)
	}
	return def, nil
}
