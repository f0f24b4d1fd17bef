package consts

const (
	RoleAdmin = "ADMIN"
)

const (
	// MaxFanoutBatchSize 单条 INSERT 的行数上限
	MaxFanoutBatchSize = 1000
	MaxBulkFollowBatch = 500
)
