// Package migrations 内嵌交易记录存储所需的 SQL 迁移文件。
package migrations

import "embed"

// Files 按文件名顺序暴露所有 SQL 迁移。
//
//go:embed *.sql
var Files embed.FS
