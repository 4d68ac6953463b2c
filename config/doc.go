// Package config 提供 Relay 的配置管理功能。
//
// 包含配置加载、Agent 与触发规则声明、密钥文件合并。
// 支持从 YAML 文件和环境变量加载配置，并在加载后统一校验。
package config
