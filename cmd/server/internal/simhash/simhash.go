package simhash

import (
	"strings"
	"unicode"

	"github.com/go-dedup/simhash"
)

// DUPLICATE_THRESHOLD 汉明距离<=3 视为近似重复
const DUPLICATE_THRESHOLD = 3

// TitleFeatureSet 实现 simhash.FeatureSet 接口，用于任务标题的特征提取
type TitleFeatureSet struct {
	text string
}

// GetFeatures 提取文本特征
// 小写后按字母数字切词，每个词本身和词内的字符级bigram都作为特征，
// 数字等短词也会影响指纹
func (t TitleFeatureSet) GetFeatures() []simhash.Feature {
	words := strings.FieldsFunc(strings.ToLower(t.text), isSeparator)
	features := make([]simhash.Feature, 0, len(words)*4)
	for _, w := range words {
		features = append(features, simhash.NewFeature([]byte("w:"+w)))
		runes := []rune(w)
		for i := 0; i < len(runes)-1; i++ {
			features = append(features, simhash.NewFeature([]byte(string(runes[i:i+2]))))
		}
	}
	return features
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// CalculateSimHash 计算文本的 SimHash 指纹
func CalculateSimHash(text string) uint64 {
	sh := simhash.NewSimhash()
	return sh.GetSimhash(TitleFeatureSet{text: text})
}

// HammingDistance 计算两个 SimHash 指纹的汉明距离（0-64）
func HammingDistance(hash1, hash2 uint64) int {
	x := hash1 ^ hash2
	count := 0
	for x != 0 {
		count++
		x &= x - 1 // 清除最右边的1
	}
	return count
}

// IsNearDuplicate 判断两个标题是否为近似重复
func IsNearDuplicate(text1, text2 string) bool {
	return HammingDistance(CalculateSimHash(text1), CalculateSimHash(text2)) <= DUPLICATE_THRESHOLD
}

// Pair 一对近似重复的标题下标，First < Second
type Pair struct {
	First  int
	Second int
}

// NearDuplicates 找出近似重复的标题对，忽略大小写完全相同的也计入
// 只用于诊断，不修改输入
func NearDuplicates(titles []string) []Pair {
	hashes := make([]uint64, len(titles))
	for i, title := range titles {
		hashes[i] = CalculateSimHash(title)
	}

	var pairs []Pair
	for i := range titles {
		for j := i + 1; j < len(titles); j++ {
			if strings.EqualFold(strings.TrimSpace(titles[i]), strings.TrimSpace(titles[j])) ||
				HammingDistance(hashes[i], hashes[j]) <= DUPLICATE_THRESHOLD {
				pairs = append(pairs, Pair{First: i, Second: j})
			}
		}
	}
	return pairs
}
