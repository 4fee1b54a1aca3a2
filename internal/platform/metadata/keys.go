package metadata

// 系统元数据的键名
const (
	// LastReconcileUnixKey 记录计数器对账任务上一次成功完成的Unix时间戳
	LastReconcileUnixKey = "last_reconcile_unix"

	// SchemaVersionKey 记录文档库结构的迁移版本
	SchemaVersionKey = "schema_version"
)
