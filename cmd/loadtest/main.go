package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	intentID := flag.String("intent", "", "intent id to hammer with duplicate checks")
	deviceID := flag.String("device", "", "device id (issued when empty)")

	// 重复确认测试参数：同一个意向并发查 N 次，台账只能多出一条
	nChecks := flag.Int("checks", 100, "concurrent check requests against one intent")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	dev := *deviceID
	if dev == "" {
		var err error
		dev, err = issueDevice(client, *baseURL)
		if err != nil {
			panic(fmt.Sprintf("issue device failed: %v", err))
		}
		fmt.Println("issued device:", dev)
	}

	// 1) 幂等测试：同一个 intent 并发打关闭检查接口。
	// 需要先在网关侧把这笔支付打到 captured，再传 -intent 进来。
	if *intentID != "" {
		fmt.Printf("start duplicate confirm test: intent=%s checks=%d concurrency=%d\n",
			*intentID, *nChecks, *concurrency)
		results := runChecks(client, *baseURL, *intentID, *nChecks, *concurrency)
		printSummary("duplicate_confirm", results)

		n, err := countConfirmed(client, *baseURL, dev, *intentID)
		if err != nil {
			fmt.Println("ledger check err:", err)
		} else {
			fmt.Printf("confirmed rows for intent: %d (expect at most 1)\n", n)
		}
	} else {
		fmt.Println("no -intent given, skipping duplicate confirm test")
	}

	// 2) 限流测试：同一设备连打找回接口（默认 5/min，很容易触发 429）
	fmt.Println("\nstart rate limit test: same device, 50 requests, concurrency 50")
	results2 := runRecover(client, *baseURL, dev, 50, 50)
	printSummary("rate_limit", results2)
}

func runChecks(client *http.Client, baseURL, intentID string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			url := fmt.Sprintf("%s/api/checkout/intent/%s/check", baseURL, intentID)
			results[idx] = postOnce(client, url, nil)
		}(i)
	}

	wg.Wait()
	return results
}

func runRecover(client *http.Client, baseURL, deviceID string, total, concurrency int) []Result {
	type Req struct {
		DeviceID string `json:"device_id"`
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			url := fmt.Sprintf("%s/api/orders/recover", baseURL)
			results[idx] = postOnce(client, url, Req{DeviceID: deviceID})
		}(i)
	}

	wg.Wait()
	return results
}

func postOnce(client *http.Client, url string, body any) Result {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	httpReq, _ := http.NewRequest(http.MethodPost, url, r)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

func issueDevice(client *http.Client, baseURL string) (string, error) {
	res := postOnce(client, fmt.Sprintf("%s/api/device", baseURL), nil)
	if res.Err != nil {
		return "", res.Err
	}
	if res.Status >= 300 {
		return "", fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}

	var out struct {
		Data struct {
			DeviceID string `json:"device_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil {
		return "", err
	}
	return out.Data.DeviceID, nil
}

// countConfirmed 压测后回读台账，校验同一意向没有被确认多次。
func countConfirmed(client *http.Client, baseURL, deviceID, intentID string) (int, error) {
	url := fmt.Sprintf("%s/api/orders?device_id=%s", baseURL, deviceID)
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Data struct {
			Confirmed []struct {
				IntentID string `json:"intent_id"`
			} `json:"confirmed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}

	n := 0
	for _, o := range out.Data.Confirmed {
		if o.IntentID == intentID {
			n++
		}
	}
	return n, nil
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}
