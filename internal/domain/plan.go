package domain

import "time"

// SubscriptionPlan тариф подписки
type SubscriptionPlan string

const (
	Plan1Month  SubscriptionPlan = "1month"
	Plan3Months SubscriptionPlan = "3months"
	Plan6Months SubscriptionPlan = "6months"
	Plan1Year   SubscriptionPlan = "1year"
)

// AllPlans возвращает все тарифы в порядке возрастания длительности
func AllPlans() []SubscriptionPlan {
	return []SubscriptionPlan{Plan1Month, Plan3Months, Plan6Months, Plan1Year}
}

// IsValid проверяет, является ли тариф валидным
func (p SubscriptionPlan) IsValid() bool {
	switch p {
	case Plan1Month, Plan3Months, Plan6Months, Plan1Year:
		return true
	default:
		return false
	}
}

func (p SubscriptionPlan) String() string {
	return string(p)
}

// DurationDays длительность тарифа в днях
func (p SubscriptionPlan) DurationDays() int {
	switch p {
	case Plan1Month:
		return 30
	case Plan3Months:
		return 90
	case Plan6Months:
		return 180
	case Plan1Year:
		return 365
	default:
		return 0
	}
}

// Title название тарифа для отображения пользователю
func (p SubscriptionPlan) Title() string {
	switch p {
	case Plan1Month:
		return "Подписка на 1 месяц"
	case Plan3Months:
		return "Подписка на 3 месяца"
	case Plan6Months:
		return "Подписка на 6 месяцев"
	case Plan1Year:
		return "Подписка на 1 год"
	default:
		return "Подписка"
	}
}

// EndDate вычисляет дату окончания подписки: now + длительность тарифа,
// выровненная на конец последнего дня. Все последующие сравнения идут
// по точному timestamp, выравнивание — только для красивого "действует до"
func (p SubscriptionPlan) EndDate(now time.Time) time.Time {
	end := now.AddDate(0, 0, p.DurationDays())
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
}

// AmountToleranceMinor допуск при сопоставлении суммы платежа с тарифом,
// в минорных единицах валюты (10 копеек / 10 центов)
const AmountToleranceMinor int64 = 10

// planPrices прайс тарифов в минорных единицах по валютам.
// YooKassa принимает рубли, PayPal — доллары
var planPrices = map[string]map[SubscriptionPlan]int64{
	"RUB": {
		Plan1Month:  9900,
		Plan3Months: 19900,
		Plan6Months: 39900,
		Plan1Year:   79900,
	},
	"USD": {
		Plan1Month:  199,
		Plan3Months: 399,
		Plan6Months: 799,
		Plan1Year:   1499,
	},
}

// deckPrices цена разового продукта "колода" в минорных единицах по валютам
var deckPrices = map[string]int64{
	"RUB": 149900,
	"USD": 2999,
}

// PlanPrice возвращает цену тарифа в минорных единицах для валюты
func PlanPrice(plan SubscriptionPlan, currency string) (int64, bool) {
	prices, ok := planPrices[currency]
	if !ok {
		return 0, false
	}
	price, ok := prices[plan]
	return price, ok
}

// DeckPrice возвращает цену колоды в минорных единицах для валюты
func DeckPrice(currency string) (int64, bool) {
	price, ok := deckPrices[currency]
	return price, ok
}

// PlanByAmount сопоставляет сумму платежа с тарифом по прайсу валюты.
// Сумма считается совпавшей, если отклоняется от точной цены
// не более чем на AmountToleranceMinor
func PlanByAmount(amountMinor int64, currency string) (SubscriptionPlan, bool) {
	prices, ok := planPrices[currency]
	if !ok {
		return "", false
	}
	for _, plan := range AllPlans() {
		price := prices[plan]
		diff := amountMinor - price
		if diff < 0 {
			diff = -diff
		}
		if diff <= AmountToleranceMinor {
			return plan, true
		}
	}
	return "", false
}

// IsDeckAmount проверяет, соответствует ли сумма цене колоды
func IsDeckAmount(amountMinor int64, currency string) bool {
	price, ok := deckPrices[currency]
	if !ok {
		return false
	}
	diff := amountMinor - price
	if diff < 0 {
		diff = -diff
	}
	return diff <= AmountToleranceMinor
}
