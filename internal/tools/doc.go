// Package tools 维护网关对外暴露的工具清单。每个工具是一个带 JSON
// 输入模式的薄处理器，分发前做必填字段校验，业务逻辑全部落在钱包
// 客户端与交易追踪器里。
package tools
