package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pankajk/Wound-Care/config"
	"github.com/pankajk/Wound-Care/model"
	"github.com/pankajk/Wound-Care/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetAnalysis 按上传MD5获取缓存的分析结果
func (s *RedisService) GetAnalysis(ctx context.Context, md5 string) (*model.AnalysisResult, error) {
	key := "analysis:" + md5
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal cached analysis",
			zap.String("md5", md5), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetAnalysis 将分析结果写入缓存
func (s *RedisService) SetAnalysis(ctx context.Context, md5 string, result *model.AnalysisResult) error {
	key := "analysis:" + md5
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
