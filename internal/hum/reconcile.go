package hum

import (
	"context"
	"fmt"
	"time"

	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/platform/metadata"
	"github.com/hummify/hummify-backend/internal/user"
	"github.com/hummify/hummify-backend/pkg/lifecycle"
)

const reconcileInterval = 10 * time.Minute // 定时对账频率

// StartReconcileScheduler 启动一个后台Goroutine来定期执行计数器对账。
// 用户文档上的计数器是派生聚合的缓存，部分失败的多步写会留下漂移；
// 该任务从权威表重算并修复它们。
func StartReconcileScheduler(handle *lifecycle.Handle) {
	defer handle.Close() // 确保在退出时通知管理器

	if ts, err := metadata.GetLastReconcileUnix(database.DB); err == nil && ts > 0 {
		fmt.Printf("计数器对账调度器已启动，上次对账完成于 %s。\n",
			time.Unix(ts, 0).Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("计数器对账调度器已启动。")
	}

	for {
		// 使用可中断的休眠，收到停机信号时立刻退出
		if err := handle.Sleep(reconcileInterval); err != nil {
			fmt.Printf("对账调度器: 休眠被中断，正在关闭... (%v)\n", err)
			return
		}

		if !database.IsRedisHealthy() {
			fmt.Println("对账调度器: 检测到Redis不可用，跳过本次对账。")
			continue
		}

		if err := ReconcileDirtyUsers(handle.Ctx()); err != nil {
			if err != context.Canceled && err != context.DeadlineExceeded {
				fmt.Printf("对账调度器错误: %v\n", err)
			}
		}
	}
}

// ReconcileDirtyUsers 消费脏用户集合，对每个成员重算计数器。
func ReconcileDirtyUsers(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// 一次性取出并清空脏集合；期间新登记的用户会落入下一轮
	uids, err := database.RDB.SMembers(database.Ctx, user.DirtyUsersKey).Result()
	if err != nil {
		return fmt.Errorf("无法读取脏用户集合: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}
	if err := database.RDB.SRem(database.Ctx, user.DirtyUsersKey, toMembers(uids)...).Err(); err != nil {
		return fmt.Errorf("无法清空脏用户集合: %w", err)
	}

	repaired := 0
	for _, uid := range uids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		changed, err := ReconcileUserCounters(uid)
		if err != nil {
			fmt.Printf("对账错误: 用户 %s: %v\n", uid, err)
			// 失败的用户重新登记，下一轮再试
			markUserDirty(uid)
			continue
		}
		if changed {
			repaired++
		}
	}

	if err := metadata.SetLastReconcileUnix(database.DB, time.Now().Unix()); err != nil {
		fmt.Printf("警告: 无法记录对账水位: %v\n", err)
	}
	if repaired > 0 {
		fmt.Printf("对账完成: 检查 %d 个用户，修复 %d 处漂移。\n", len(uids), repaired)
	}
	return nil
}

func toMembers(uids []string) []interface{} {
	members := make([]interface{}, len(uids))
	for i, uid := range uids {
		members[i] = uid
	}
	return members
}

// ReconcileUserCounters 从权威表重算一个用户的全部计数器，
// 与文档上的缓存不一致时写回修复。返回是否发生了修复。
func ReconcileUserCounters(uid string) (bool, error) {
	var u user.User
	if err := database.DB.Where("uuid = ?", uid).First(&u).Error; err != nil {
		return false, err
	}

	var totalHums, totalLikes, totalComments, songsIdentified int64

	if err := database.DB.Model(&Hum{}).
		Where("user_id = ?", uid).Count(&totalHums).Error; err != nil {
		return false, err
	}
	if err := database.DB.Model(&HumLike{}).
		Joins("JOIN hums ON hums.id = hum_likes.hum_id AND hums.deleted_at IS NULL").
		Where("hums.user_id = ?", uid).Count(&totalLikes).Error; err != nil {
		return false, err
	}
	if err := database.DB.Model(&Comment{}).
		Where("user_id = ?", uid).Count(&totalComments).Error; err != nil {
		return false, err
	}
	// 混音继承的识别结果不计入songsIdentified
	if err := database.DB.Model(&Hum{}).
		Where("user_id = ? AND is_remix = ? AND matched_song IS NOT NULL AND matched_song != 'null'", uid, false).
		Count(&songsIdentified).Error; err != nil {
		return false, err
	}

	if int(totalHums) == u.TotalHums && int(totalLikes) == u.TotalLikes &&
		int(totalComments) == u.TotalComments && int(songsIdentified) == u.SongsIdentified {
		return false, nil
	}

	err := database.DB.Model(&user.User{}).Where("uuid = ?", uid).Updates(map[string]interface{}{
		"total_hums":       totalHums,
		"total_likes":      totalLikes,
		"total_comments":   totalComments,
		"songs_identified": songsIdentified,
	}).Error
	if err != nil {
		return false, err
	}
	fmt.Printf("对账: 已修复用户 %s 的计数器漂移。\n", uid)
	return true, nil
}
