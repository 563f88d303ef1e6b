package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	rd "github.com/redis/go-redis/v9"

	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	redisAddr := flag.String("redis", "localhost:6379", "redis addr (seed login tokens / check stock)")
	voucherID := flag.Uint64("voucher", 0, "existing voucher id (0 = create a fresh one)")
	stock := flag.Int64("stock", 100, "stock when creating a fresh voucher")

	// 超卖测试参数：users 个用户并发抢 stock 件
	nUsers := flag.Int("users", 200, "distinct users")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	ctx := context.Background()

	rdb := rd.NewClient(&rd.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("redis ping: %v", err))
	}

	vid := *voucherID
	if vid == 0 {
		id, err := createVoucher(client, *baseURL, *stock)
		if err != nil {
			panic(fmt.Sprintf("create voucher failed: %v", err))
		}
		vid = id
		fmt.Println("created voucher", vid)
	}

	// 秒杀接口要求登录态，直接往 Redis 预埋 token
	tokens := seedTokens(ctx, rdb, *nUsers)
	fmt.Printf("seeded %d login tokens\n", len(tokens))

	// 1) 不超卖测试：不同 user 并发
	fmt.Printf("start oversell test: voucher=%d users=%d concurrency=%d\n", vid, *nUsers, *concurrency)
	results := runSeckill(client, *baseURL, vid, tokens, *concurrency)
	printSummary("oversell", results)

	finalStock, err := rdb.Get(ctx, rediskey.StockKey(vid)).Int64()
	if err != nil {
		fmt.Println("stock check err:", err)
	} else {
		fmt.Println("final redis stock:", finalStock)
	}

	// 2) 一人一单测试：同一个 user 连抢两次，第二次必须被拒
	fmt.Println("start duplicate test: same user twice")
	dup := runSeckill(client, *baseURL, vid, []string{tokens[0], tokens[0]}, 1)
	printSummary("duplicate", dup)
}

// createVoucher 通过 API 建一张立即生效的测试券。
func createVoucher(client *http.Client, baseURL string, stock int64) (uint64, error) {
	now := time.Now()
	body, _ := json.Marshal(map[string]any{
		"title":      "loadtest voucher",
		"pay_value":  100,
		"stock":      stock,
		"begin_time": now.Add(-time.Minute).Format(time.RFC3339),
		"end_time":   now.Add(time.Hour).Format(time.RFC3339),
	})
	resp, err := client.Post(baseURL+"/api/voucher", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		Data struct {
			ID uint64 `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, err
	}
	return out.Data.ID, nil
}

// seedTokens 为 n 个虚拟用户写入登录态，返回 token 列表。
func seedTokens(ctx context.Context, rdb *rd.Client, n int) []string {
	tokens := make([]string, 0, n)
	for i := 0; i < n; i++ {
		token := fmt.Sprintf("loadtest-u%d", i+1)
		key := rediskey.LoginTokenKey(token)
		rdb.HSet(ctx, key,
			"id", fmt.Sprintf("%d", i+1),
			"nick_name", fmt.Sprintf("user_%d", i+1),
			"icon", "",
		)
		rdb.Expire(ctx, key, time.Hour)
		tokens = append(tokens, token)
	}
	return tokens
}

// runSeckill 以给定并发度为每个 token 发一次下单请求。
func runSeckill(client *http.Client, baseURL string, voucherID uint64, tokens []string, concurrency int) []Result {
	results := make([]Result, len(tokens))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			url := fmt.Sprintf("%s/api/voucher/seckill/%d", baseURL, voucherID)
			req, err := http.NewRequest(http.MethodPost, url, nil)
			if err != nil {
				results[i] = Result{Err: err}
				return
			}
			req.Header.Set("Authorization", token)
			resp, err := client.Do(req)
			if err != nil {
				results[i] = Result{Err: err}
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			results[i] = Result{Status: resp.StatusCode, Body: string(body)}
		}(i, token)
	}
	wg.Wait()
	return results
}

// printSummary 按状态码聚合输出。
func printSummary(name string, results []Result) {
	byStatus := map[int]int{}
	errs := 0
	for _, r := range results {
		if r.Err != nil {
			errs++
			continue
		}
		byStatus[r.Status]++
	}
	fmt.Printf("[%s] total=%d errors=%d\n", name, len(results), errs)
	for status, n := range byStatus {
		fmt.Printf("  status %d: %d\n", status, n)
	}
}
