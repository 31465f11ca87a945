package ledger

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// ParseAmount 把十进制字符串金额换算为最小单位的整数。
// 全程使用 big.Int，不经过任何浮点运算。
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "金额不能为空")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "金额不能为负数")
	}
	// 金额语法只有数字和一个小数点，显式正号一并拒绝。
	if strings.HasPrefix(amount, "+") {
		return nil, xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("非法金额: %s", amount))
	}
	if decimals < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "小数位数不能为负数")
	}

	whole := amount
	frac := ""
	if idx := strings.IndexByte(amount, '.'); idx >= 0 {
		whole = amount[:idx]
		frac = amount[idx+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return nil, xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("非法金额: %s", amount))
		}
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, xerrors.New(xerrors.CodeInvalidParams,
			fmt.Sprintf("金额 %s 超出精度上限 %d 位小数", amount, decimals))
	}
	frac += strings.Repeat("0", decimals-len(frac))

	digits := whole + frac
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("非法金额: %s", amount))
	}
	return value, nil
}

// FormatAmount 把最小单位的整数换算回十进制字符串，去掉多余的尾零。
func FormatAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	digits := value.String()
	if decimals <= 0 {
		return digits
	}

	negative := strings.HasPrefix(digits, "-")
	if negative {
		digits = digits[1:]
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")

	result := whole
	if frac != "" {
		result = whole + "." + frac
	}
	if negative {
		result = "-" + result
	}
	return result
}
