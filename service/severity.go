package service

import "github.com/pankajk/Wound-Care/model"

// SeverityForScore 将PWAT评分映射为临床严重程度。
// 阈值8/16/24把[0,∞)划分为四个连续不重叠的等级。
func SeverityForScore(score float64) model.Severity {
	switch {
	case score < 8:
		return model.Severity{
			Level:       "Mild",
			Color:       "#27ae60",
			Description: "Wound is healing well. Continue current care.",
		}
	case score < 16:
		return model.Severity{
			Level:       "Moderate",
			Color:       "#f39c12",
			Description: "Active treatment recommended. Monitor closely.",
		}
	case score < 24:
		return model.Severity{
			Level:       "Severe",
			Color:       "#e74c3c",
			Description: "Requires immediate attention. Consider specialist consult.",
		}
	default:
		return model.Severity{
			Level:       "Very Severe",
			Color:       "#c0392b",
			Description: "Critical - seek specialist care immediately.",
		}
	}
}
