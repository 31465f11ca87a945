// Package gateway 实现面向智能体的协议网关。同一套分发逻辑挂在三种
// 传输之上：双向流式 HTTP、SSE 推送配对 POST 旁路、以及 stdio 管道。
// 会话生命周期由 session.Registry 统一管理，工具语义在 tools 包中。
package gateway
