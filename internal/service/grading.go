package service

import "course_portal_backend/internal/model"

// gradeAttempt 计算成绩并写回 attempt 及其答案的 IsCorrect。
// 选择题选中集合与正确集合完全一致才得分；有内容的主观题计入待批改。
func gradeAttempt(attempt *model.Attempt, quiz *model.Quiz) {
	byQuestion := make(map[uint]*model.AttemptAnswer, len(attempt.Answers))
	for i := range attempt.Answers {
		byQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	attempt.Grade = 0
	attempt.MaxGrade = 0
	attempt.CorrectAnswers = 0
	attempt.IncorrectAnswers = 0
	attempt.UnansweredQuestions = 0
	attempt.PendingReview = 0

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		attempt.MaxGrade += q.Points

		ans := byQuestion[q.ID]
		switch {
		case ans.IsEmpty():
			attempt.UnansweredQuestions++
			if ans != nil {
				ans.IsCorrect = nil
			}
		case q.Type == model.Essay:
			attempt.PendingReview++
			ans.IsCorrect = nil
		default:
			correct := ans.SelectedAnswerIDs.SameSet(q.CorrectAnswerIDs())
			ans.IsCorrect = &correct
			if correct {
				attempt.CorrectAnswers++
				attempt.Grade += q.Points
			} else {
				attempt.IncorrectAnswers++
			}
		}
	}

	attempt.IsPassed = attempt.Grade >= quiz.MinPassScore
}

// buildGradedAttempt 根据已存储的批改结果组装响应，不重新评分
func buildGradedAttempt(attempt *model.Attempt, quiz *model.Quiz) *model.GradedAttempt {
	byQuestion := make(map[uint]*model.AttemptAnswer, len(attempt.Answers))
	for i := range attempt.Answers {
		byQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	results := make([]model.GradedQuestion, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		gq := model.GradedQuestion{
			QuestionID:        q.ID,
			Position:          q.Position,
			Type:              q.Type,
			Content:           q.Content,
			Points:            q.Points,
			Answers:           q.Answers,
			SelectedAnswerIDs: model.AnswerIDs{},
		}
		if ans := byQuestion[q.ID]; ans != nil {
			if ans.SelectedAnswerIDs != nil {
				gq.SelectedAnswerIDs = ans.SelectedAnswerIDs
			}
			gq.TextAnswer = ans.TextAnswer
			gq.IsCorrect = ans.IsCorrect
		}
		results = append(results, gq)
	}

	out := *attempt
	out.TimeLimitMinutes = quiz.TimeLimitMinutes
	out.RemainingTimeSeconds = nil
	out.Questions = nil
	return &model.GradedAttempt{Attempt: out, Results: results}
}
