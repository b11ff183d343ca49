package service

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"course_portal_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const receiptUploadTimeout = 30 * time.Second

// ReceiptService 把已完成尝试的成绩以 JSON 回执形式归档到对象存储
type ReceiptService struct {
	Storage *StorageService
	wg      sync.WaitGroup
}

func NewReceiptService(storage *StorageService) *ReceiptService {
	return &ReceiptService{Storage: storage}
}

func ReceiptKey(quizID, attemptID uint) string {
	return fmt.Sprintf("receipts/quiz-%d/attempt-%d.json", quizID, attemptID)
}

// Archive 异步上传，失败只记录日志
func (s *ReceiptService) Archive(graded *model.GradedAttempt) {
	data, err := json.Marshal(graded)
	if err != nil {
		logger.Log.Error("Failed to encode receipt", zap.Uint("attemptID", graded.ID), zap.Error(err))
		return
	}
	key := ReceiptKey(graded.QuizID, graded.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), receiptUploadTimeout)
		defer cancel()

		url, err := s.Storage.Put(ctx, key, data, util.MimeJSON)
		if err != nil {
			logger.Log.Warn("Failed to archive receipt", zap.String("key", key), zap.Error(err))
			return
		}
		logger.Log.Debug("Receipt archived", zap.String("url", url))
	}()
}

// Load 读取已归档的回执
func (s *ReceiptService) Load(ctx context.Context, quizID, attemptID uint) (*model.GradedAttempt, error) {
	data, err := s.Storage.Get(ctx, ReceiptKey(quizID, attemptID))
	if err != nil {
		return nil, err
	}
	var graded model.GradedAttempt
	if err := json.Unmarshal(data, &graded); err != nil {
		return nil, err
	}
	return &graded, nil
}

// Wait 等待所有上传结束，关闭服务前调用
func (s *ReceiptService) Wait() {
	s.wg.Wait()
}
