package hum

// 定义与哼唱相关的Redis键名
const (
	// FeedKey 是一个Sorted Set，按创建时间（Unix毫秒）索引全部哼唱ID，
	// 用于Feed的按时间倒序读取。
	FeedKey = "hum:feed"

	// LikersKeyPrefix 之后拼接哼唱ID，是该哼唱点赞者UUID的Set缓存。
	// 文档库中的HumLike行是最终事实来源，该Set在启动时预热。
	LikersKeyPrefix = "hum:likers:"
)

// LikersKey 返回某条哼唱的点赞者Set键名。
func LikersKey(humID string) string {
	return LikersKeyPrefix + humID
}
